package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Conversation is one logged chat session with an agent.
type Conversation struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is one message from a logged conversation.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatLogs calls GET /chat/logs/{agentID}.
func (c *Client) ChatLogs(ctx context.Context, agentID string) ([]Conversation, error) {
	var convs []Conversation
	path := "/chat/logs/" + url.PathEscape(agentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &convs); err != nil {
		return nil, fmt.Errorf("chat logs: %w", err)
	}
	return convs, nil
}

// ConversationMessages calls GET /conversations/{id}/messages.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	var msgs []ChatMessage
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	return msgs, nil
}
