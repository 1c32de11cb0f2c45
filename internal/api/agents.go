package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Agent is a configurable agent definition.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgentRequest carries the mutable fields for create and update.
type AgentRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
}

// CreateAgent calls POST /agents.
func (c *Client) CreateAgent(ctx context.Context, req *AgentRequest) (*Agent, error) {
	var agent Agent
	if err := c.doJSON(ctx, http.MethodPost, "/agents", req, &agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &agent, nil
}

// ListAgents calls GET /agents.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.doJSON(ctx, http.MethodGet, "/agents", nil, &agents); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// GetAgent calls GET /agents/{id}.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	path := "/agents/" + url.PathEscape(agentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &agent); err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &agent, nil
}

// UpdateAgent calls PUT /agents/{id}.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, req *AgentRequest) (*Agent, error) {
	var agent Agent
	path := "/agents/" + url.PathEscape(agentID)
	if err := c.doJSON(ctx, http.MethodPut, path, req, &agent); err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return &agent, nil
}

// DeleteAgent calls DELETE /agents/{id}.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	path := "/agents/" + url.PathEscape(agentID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}
