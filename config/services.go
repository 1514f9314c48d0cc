package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the search job worker.
	ServiceModeWorker ServiceMode = "worker"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains search worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines. Each goroutine
	// processes one job at a time, pulling the next only after the
	// current job reaches a terminal state.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// DequeueBlock is how long a dequeue blocks waiting for work before
	// the loop re-checks for cancellation and reclaimable deliveries.
	DequeueBlock time.Duration `env:"WORKER_DEQUEUE_BLOCK" envDefault:"5s"`

	// RedeliveryIdle is the minimum idle time before an unacked work item
	// from a dead consumer is reclaimed and re-executed from scratch.
	// Live consumers refresh their entry at a third of this interval, so
	// only a crashed worker lets an entry go stale.
	RedeliveryIdle time.Duration `env:"WORKER_REDELIVERY_IDLE" envDefault:"1m"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.DequeueBlock < time.Second {
		w.DequeueBlock = time.Second
	}
	if w.RedeliveryIdle < 10*time.Second {
		w.RedeliveryIdle = 10 * time.Second
	}
}

// GitHubConfig contains upstream gist API configuration.
type GitHubConfig struct {
	// BaseURL is the root of the gist listing API.
	BaseURL string `env:"GITHUB_API_BASE_URL" envDefault:"https://api.github.com"`

	// Token is an optional bearer token for authenticated requests
	// (raises the upstream rate limit; anonymous access works too).
	Token string `env:"GITHUB_TOKEN" envDefault:""`

	// FetchTimeout bounds each upstream request (listing or raw fetch)
	// so one unreachable host cannot wedge a worker.
	FetchTimeout time.Duration `env:"GITHUB_FETCH_TIMEOUT" envDefault:"30s"`

	// MaxContentBytes caps how much of one raw file is scanned.
	MaxContentBytes int64 `env:"GITHUB_MAX_CONTENT_BYTES" envDefault:"10485760"` // 10 MiB
}

// Sanitize applies guardrails to GitHub configuration values.
func (g *GitHubConfig) Sanitize() {
	if g.FetchTimeout <= 0 {
		g.FetchTimeout = 30 * time.Second
	}
	if g.MaxContentBytes <= 0 {
		g.MaxContentBytes = 10 * 1024 * 1024
	}
}
