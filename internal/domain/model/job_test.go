package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchStatus_Valid(t *testing.T) {
	for _, s := range []SearchStatus{StatusPending, StatusStarted, StatusSuccess, StatusFailure} {
		assert.True(t, s.Valid(), "expected %s to be valid", s)
	}
	assert.False(t, SearchStatus("RUNNING").Valid())
	assert.False(t, SearchStatus("pending").Valid(), "statuses are case sensitive on the wire")
	assert.False(t, SearchStatus("").Valid())
}

func TestSearchStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusStarted.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailure.Terminal())
}

func TestSearchStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from SearchStatus
		to   SearchStatus
		want bool
	}{
		{"pending to started", StatusPending, StatusStarted, true},
		{"pending to success", StatusPending, StatusSuccess, true},
		{"pending to failure", StatusPending, StatusFailure, true},
		{"started to success", StatusStarted, StatusSuccess, true},
		{"started to failure", StatusStarted, StatusFailure, true},
		{"started to pending regresses", StatusStarted, StatusPending, false},
		{"success is terminal", StatusSuccess, StatusFailure, false},
		{"failure is terminal", StatusFailure, StatusSuccess, false},
		{"terminal never restarts", StatusSuccess, StatusStarted, false},
		{"no self transition", StatusStarted, StatusStarted, false},
		{"unknown target", StatusPending, SearchStatus("DONE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSearchStatus_Predecessors(t *testing.T) {
	assert.Empty(t, StatusPending.Predecessors(), "nothing precedes PENDING")
	assert.Equal(t, []SearchStatus{StatusPending}, StatusStarted.Predecessors())
	assert.Equal(t, []SearchStatus{StatusPending, StatusStarted}, StatusSuccess.Predecessors())
	assert.Equal(t, []SearchStatus{StatusPending, StatusStarted}, StatusFailure.Predecessors())
}

func TestSubmitSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitSearchRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request",
			req:  SubmitSearchRequest{Username: "octocat", Pattern: "import"},
		},
		{
			name: "regex pattern",
			req:  SubmitSearchRequest{Username: "octocat", Pattern: `func \w+\(`},
		},
		{
			name:    "missing username",
			req:     SubmitSearchRequest{Pattern: "import"},
			wantErr: true,
			errMsg:  "username is required",
		},
		{
			name:    "whitespace username",
			req:     SubmitSearchRequest{Username: "   ", Pattern: "import"},
			wantErr: true,
			errMsg:  "username is required",
		},
		{
			name:    "missing pattern",
			req:     SubmitSearchRequest{Username: "octocat"},
			wantErr: true,
			errMsg:  "pattern is required",
		},
		{
			name:    "invalid pattern rejected at submission",
			req:     SubmitSearchRequest{Username: "octocat", Pattern: "(unclosed"},
			wantErr: true,
			errMsg:  "invalid pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWorkItem_Validate(t *testing.T) {
	valid := WorkItem{JobID: "a1", Username: "octocat", Pattern: "x"}
	require.NoError(t, valid.Validate())

	missing := []WorkItem{
		{Username: "octocat", Pattern: "x"},
		{JobID: "a1", Pattern: "x"},
		{JobID: "a1", Username: "octocat"},
	}
	for _, item := range missing {
		assert.Error(t, item.Validate())
	}
}
