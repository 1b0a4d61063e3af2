package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cometsh/atstream/internal/util"
)

// AdminClient wraps Tap's companion HTTP admin API, separate from the
// WebSocket ingress channel, following util.RobustHTTPClient for retry
// behavior on transport errors and 5xx/429 responses.
type AdminClient struct {
	baseURL    string
	password   *string
	httpClient *http.Client
}

// AdminOption configures an AdminClient.
type AdminOption func(*AdminClient)

// WithAdminHTTPClient overrides the underlying *http.Client (default:
// util.RobustHTTPClient).
func WithAdminHTTPClient(client *http.Client) AdminOption {
	return func(c *AdminClient) { c.httpClient = client }
}

// NewAdminClient constructs an AdminClient targeting host, with the
// optional Basic auth password sent as every request's credential (user
// "admin", per §6).
func NewAdminClient(host string, password *string, logger *slog.Logger, opts ...AdminOption) *AdminClient {
	c := &AdminClient{
		baseURL:    strings.TrimRight(host, "/"),
		password:   password,
		httpClient: util.RobustHTTPClient(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AdminClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building admin request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.password != nil {
		req.SetBasicAuth("admin", *c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tap admin request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading admin response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AdminError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}

// AddRepos requests that Tap begin indexing dids.
func (c *AdminClient) AddRepos(ctx context.Context, dids []string) error {
	_, err := c.do(ctx, http.MethodPost, "/repos/add", struct {
		Dids []string `json:"dids"`
	}{Dids: dids})
	return err
}

// RemoveRepos requests that Tap stop indexing dids.
func (c *AdminClient) RemoveRepos(ctx context.Context, dids []string) error {
	_, err := c.do(ctx, http.MethodPost, "/repos/remove", struct {
		Dids []string `json:"dids"`
	}{Dids: dids})
	return err
}

// ResolveRepo returns Tap's resolution record for did.
func (c *AdminClient) ResolveRepo(ctx context.Context, did string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/resolve/"+did, nil)
}

// RepoInfo returns Tap's indexing status for did.
func (c *AdminClient) RepoInfo(ctx context.Context, did string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/info/"+did, nil)
}

// Stat is one of the recognized Tap /stats/* endpoints.
type Stat string

const (
	StatRepoCount    Stat = "repo-count"
	StatRecordCount  Stat = "record-count"
	StatOutboxBuffer Stat = "outbox-buffer"
	StatResyncBuffer Stat = "resync-buffer"
	StatCursors      Stat = "cursors"
)

// Stats returns the requested Tap operational statistic.
func (c *AdminClient) Stats(ctx context.Context, stat Stat) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/stats/"+string(stat), nil)
}

// Health checks Tap's /health endpoint, returning nil only on a 2xx response.
func (c *AdminClient) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}
