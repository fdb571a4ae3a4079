// Package hooks provides the Claude Code hook protocol for tracehook.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thebtf/tracehook/pkg/api"
)

// Client posts usage reports to a tracehook server.
type Client struct {
	serverURL string
	token     string
	http      *http.Client
}

// NewClient returns a Client for serverURL authenticating with token.
func NewClient(serverURL, token string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		token:     token,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Report posts one usage report. A non-2xx status is an error; a 2xx
// with status "error" in the body is returned to the caller to log.
func (c *Client) Report(ctx context.Context, report api.ReportRequest) (*api.ReportResponse, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/report", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("report returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed api.ReportResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode report response: %w", err)
	}
	return &parsed, nil
}
