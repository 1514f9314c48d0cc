// Package github is the HTTP client for the gist listing API and for
// fetching raw gist file content.
package github

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gistseek/gistseek/config"
	"github.com/gistseek/gistseek/internal/domain/model"
	apperrors "github.com/gistseek/gistseek/internal/errors"
)

const userAgent = "gistseek"

// Client talks to the gist API. A zero-value Client is not usable;
// construct one with NewClient.
type Client struct {
	baseURL         string
	token           string
	maxContentBytes int64
	httpClient      *http.Client
}

// NewClient builds a Client from configuration. The underlying
// http.Client enforces the per-request fetch timeout.
func NewClient(cfg config.GitHubConfig) *Client {
	cfg.Sanitize()
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		token:           cfg.Token,
		maxContentBytes: cfg.MaxContentBytes,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
	}
}

// ListGists returns all gist metadata for a username. Any transport
// failure, non-success status, or malformed body is a Fetch error; the
// caller treats it as fatal for the job rather than retrying.
func (c *Client) ListGists(ctx context.Context, username string) ([]model.GistMetadata, error) {
	endpoint := fmt.Sprintf("%s/users/%s/gists", c.baseURL, url.PathEscape(username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFetch, "build gist listing request")
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeFetch, "list gists for %s", username)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Drain so the connection can be reused before we bail.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperrors.Fetch(fmt.Sprintf("list gists for %s: upstream returned %d", username, resp.StatusCode))
	}

	var gists []model.GistMetadata
	if err := json.NewDecoder(resp.Body).Decode(&gists); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeFetch, "decode gist listing for %s", username)
	}
	return gists, nil
}

// FetchMatch streams the raw content at rawURL through the compiled
// pattern and reports whether it matched anywhere. Content beyond the
// configured byte cap is not scanned.
func (c *Client) FetchMatch(ctx context.Context, rawURL string, pattern *regexp.Regexp) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeFetch, "build raw content request")
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrCodeFetch, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, apperrors.Fetch(fmt.Sprintf("fetch %s: upstream returned %d", rawURL, resp.StatusCode))
	}

	// MatchReader streams the body rune by rune, so a large file never
	// has to fit in memory.
	reader := bufio.NewReader(io.LimitReader(resp.Body, c.maxContentBytes))
	matched := pattern.MatchReader(reader)

	// A body error surfaces on the next read; check it so a truncated
	// transfer is reported as a fetch failure, not a silent non-match.
	if !matched {
		if _, err := resp.Body.Read(make([]byte, 1)); err != nil && !errors.Is(err, io.EOF) {
			return false, apperrors.Wrapf(err, apperrors.ErrCodeFetch, "read %s", rawURL)
		}
	}
	return matched, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Health verifies the upstream API answers within a short window.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}
