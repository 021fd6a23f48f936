package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxErrorBody caps how much of a failed response is kept for logs.
const maxErrorBody = 512

// ControlItem is one element of the outbound control body.
type ControlItem struct {
	SubCompositionID string         `json:"subCompositionId"`
	State            string         `json:"state,omitempty"`
	Payload          map[string]any `json:"payload"`
}

// Client sends control requests to the remote renderer.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the renderer at baseURL. A nil hc uses
// http.DefaultClient; per-call deadlines come from the context.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Control sends items to PATCH {base}/controlapps/{appToken}/control.
// A non-2xx response yields a *StatusError.
func (c *Client) Control(ctx context.Context, appToken string, items []ControlItem) error {
	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode control body: %w", err)
	}

	endpoint := c.baseURL + "/controlapps/" + url.PathEscape(appToken) + "/control"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send control request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
