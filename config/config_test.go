package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[ServiceMode]bool
		wantErr bool
	}{
		{
			name:  "http and worker",
			input: "http,worker",
			want:  map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeWorker: true},
		},
		{
			name:  "http only",
			input: "http",
			want:  map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:  "whitespace tolerated",
			input: " http , worker ",
			want:  map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeWorker: true},
		},
		{
			name:  "trailing comma ignored",
			input: "worker,",
			want:  map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only commas",
			input:   ",,",
			wantErr: true,
		},
		{
			name:    "invalid service name",
			input:   "http,scheduler",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppConfig_ServiceHelpers(t *testing.T) {
	cfg := AppConfig{Services: "http,worker"}
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsWorkerEnabled())

	cfg.Services = "worker"
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsWorkerEnabled())

	cfg.Services = "bogus"
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsWorkerEnabled())
}

func TestWorkerConfig_Sanitize(t *testing.T) {
	w := WorkerConfig{Concurrency: 0, DequeueBlock: 0, RedeliveryIdle: 0}
	w.Sanitize()
	assert.Equal(t, 1, w.Concurrency)
	assert.Equal(t, time.Second, w.DequeueBlock)
	assert.Equal(t, 10*time.Second, w.RedeliveryIdle)

	w = WorkerConfig{Concurrency: 4, DequeueBlock: 5 * time.Second, RedeliveryIdle: time.Minute}
	w.Sanitize()
	assert.Equal(t, 4, w.Concurrency)
	assert.Equal(t, 5*time.Second, w.DequeueBlock)
	assert.Equal(t, time.Minute, w.RedeliveryIdle)
}

func TestGitHubConfig_Sanitize(t *testing.T) {
	g := GitHubConfig{}
	g.Sanitize()
	assert.Equal(t, 30*time.Second, g.FetchTimeout)
	assert.Equal(t, int64(10*1024*1024), g.MaxContentBytes)
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	h := HTTPConfig{ReadTimeout: -1, WriteTimeout: 0}
	h.Sanitize()
	assert.Equal(t, 30*time.Second, h.ReadTimeout)
	assert.Equal(t, 30*time.Second, h.WriteTimeout)
}

func TestMetricsConfig_IsEnabled(t *testing.T) {
	assert.False(t, MetricsConfig{}.IsEnabled())
	assert.False(t, MetricsConfig{Enabled: true, StatsdAddress: "  "}.IsEnabled())
	assert.True(t, MetricsConfig{Enabled: true, StatsdAddress: "localhost:8125"}.IsEnabled())
}
