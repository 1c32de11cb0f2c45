package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Chunk is one knowledge-base fragment attached to an agent.
type Chunk struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResult reports the outcome of a knowledge-base upload.
type UploadResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

// UploadFile calls POST /agents/{id}/kb/upload with a multipart body.
func (c *Client) UploadFile(ctx context.Context, agentID, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	path := fmt.Sprintf("/agents/%s/kb/upload", url.PathEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.send(ctx, req, &result); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	return &result, nil
}

// Chunks calls GET /agents/{id}/kb.
func (c *Client) Chunks(ctx context.Context, agentID string) ([]Chunk, error) {
	var chunks []Chunk
	path := fmt.Sprintf("/agents/%s/kb", url.PathEscape(agentID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &chunks); err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

// SearchChunks calls GET /agents/{id}/kb/search.
func (c *Client) SearchChunks(ctx context.Context, agentID, query string, limit int) ([]Chunk, error) {
	var chunks []Chunk
	path := fmt.Sprintf("/agents/%s/kb/search?query=%s&limit=%s",
		url.PathEscape(agentID), url.QueryEscape(query), strconv.Itoa(limit))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &chunks); err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return chunks, nil
}

// DeleteChunk calls DELETE /agents/{id}/kb/chunks/{chunkID}.
func (c *Client) DeleteChunk(ctx context.Context, agentID, chunkID string) error {
	path := fmt.Sprintf("/agents/%s/kb/chunks/%s", url.PathEscape(agentID), url.PathEscape(chunkID))
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete chunk: %w", err)
	}
	return nil
}
