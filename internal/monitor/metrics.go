package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ccjk/ctxrd/internal/httpapi"
)

// StatusClient queries the ctxrd daemon's HTTP surface (internal/httpapi)
// for the data the dashboard renders: active session usage and sync queue
// depth.
type StatusClient struct {
	baseURL string
	client  *http.Client
}

// NewStatusClient creates a client against a running daemon at baseURL
// (e.g. "http://localhost:9090").
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

func (c *StatusClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Status fetches GET /status from the daemon.
func (c *StatusClient) Status(ctx context.Context) (httpapi.StatusResponse, error) {
	var out httpapi.StatusResponse
	err := c.get(ctx, "/status", &out)
	return out, err
}

// Sync fetches GET /sync from the daemon.
func (c *StatusClient) Sync(ctx context.Context) (httpapi.SyncResponse, error) {
	var out httpapi.SyncResponse
	err := c.get(ctx, "/sync", &out)
	return out, err
}
