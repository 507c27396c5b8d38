package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/cycle"
)

// Client reads the status server over its unix socket
type Client struct {
	http *http.Client
}

// NewClient creates a client for the status socket at socketPath
func NewClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		http: &http.Client{Transport: transport, Timeout: 2 * time.Second},
	}
}

// State fetches the current snapshot
func (c *Client) State(ctx context.Context) (cycle.Snapshot, error) {
	var snap cycle.Snapshot
	err := c.get(ctx, "/api/state", &snap)
	return snap, err
}

// Health fetches the health report
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var health map[string]interface{}
	err := c.get(ctx, "/api/health", &health)
	return health, err
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://nicotine"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("status server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status server: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid status response: %w", err)
	}
	return nil
}
