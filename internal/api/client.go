// Package api provides the HTTP client for the agent and knowledge-base
// REST services.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZahurZaidi/Bawaal/internal/auth"
)

// Client is an HTTP client for the backend REST API.
type Client struct {
	baseURL    string
	tokens     auth.TokenSource
	httpClient *http.Client
}

// NewClient creates a new API client. Every request carries a bearer token
// from tokens.
func NewClient(baseURL string, tokens auth.TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// errorResponse matches both the backend's {"detail": ...} and the dev
// server's {"error": ...} error bodies.
type errorResponse struct {
	Detail string `json:"detail"`
	Err    string `json:"error"`
}

func (e *errorResponse) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Err
}

// Health calls GET /health without authentication.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// doJSON issues an authenticated JSON request and decodes the response
// into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(ctx, req, out)
}

// send attaches the credential, performs the request and decodes the
// response.
func (c *Client) send(ctx context.Context, req *http.Request, out interface{}) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("credential acquisition failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.message() != "" {
			return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, errResp.message())
		}
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
