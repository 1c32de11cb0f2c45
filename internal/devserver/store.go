package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Agent is a configurable agent definition.
type Agent struct {
	AgentID      string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation groups the messages of one chat connection.
type Conversation struct {
	ConversationID string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// StoredMessage is one persisted chat message.
type StoredMessage struct {
	MessageID      string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Chunk is one knowledge-base fragment attached to an agent.
type Chunk struct {
	ChunkID   string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists agents, conversations and knowledge chunks in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dsn. Use ":memory:" for an
// ephemeral store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			system_prompt TEXT,
			model TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (agent_id) REFERENCES agents(agent_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS kb_chunks (
			chunk_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			source TEXT,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (agent_id) REFERENCES agents(agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_agent ON kb_chunks(agent_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAgent inserts a new agent.
func (s *Store) CreateAgent(ctx context.Context, a *Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (agent_id, name, description, system_prompt, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.AgentID, a.Name, a.Description, a.SystemPrompt, a.Model, a.CreatedAt)
	return err
}

// GetAgent retrieves an agent by ID. Returns nil when not found.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, description, system_prompt, model, created_at FROM agents WHERE agent_id = ?`,
		agentID).Scan(&a.AgentID, &a.Name, &a.Description, &a.SystemPrompt, &a.Model, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAgents returns all agents, newest first.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, description, system_prompt, model, created_at FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.AgentID, &a.Name, &a.Description, &a.SystemPrompt, &a.Model, &a.CreatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent overwrites an agent's mutable fields. Reports false when the
// agent does not exist.
func (s *Store) UpdateAgent(ctx context.Context, a *Agent) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, system_prompt = ?, model = ? WHERE agent_id = ?`,
		a.Name, a.Description, a.SystemPrompt, a.Model, a.AgentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteAgent removes an agent and its knowledge chunks.
func (s *Store) DeleteAgent(ctx context.Context, agentID string) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kb_chunks WHERE agent_id = ?`, agentID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CreateConversation inserts a new conversation.
func (s *Store) CreateConversation(ctx context.Context, c *Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, agent_id, created_at) VALUES (?, ?, ?)`,
		c.ConversationID, c.AgentID, c.CreatedAt)
	return err
}

// ListConversations returns an agent's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, agentID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, agent_id, created_at FROM conversations WHERE agent_id = ? ORDER BY created_at DESC`,
		agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ConversationID, &c.AgentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// CreateMessage inserts a chat message.
func (s *Store) CreateMessage(ctx context.Context, m *StoredMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.MessageID, m.ConversationID, m.Role, m.Content, m.CreatedAt)
	return err
}

// ListMessages returns a conversation's messages in order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []StoredMessage{}
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateChunk inserts a knowledge-base chunk.
func (s *Store) CreateChunk(ctx context.Context, c *Chunk) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kb_chunks (chunk_id, agent_id, source, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ChunkID, c.AgentID, c.Source, c.Content, c.CreatedAt)
	return err
}

// ListChunks returns an agent's knowledge chunks in insertion order.
func (s *Store) ListChunks(ctx context.Context, agentID string) ([]Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT chunk_id, agent_id, source, content, created_at FROM kb_chunks WHERE agent_id = ? ORDER BY created_at ASC`,
		agentID)
}

// SearchChunks returns up to limit chunks whose content matches query.
func (s *Store) SearchChunks(ctx context.Context, agentID, query string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryChunks(ctx,
		`SELECT chunk_id, agent_id, source, content, created_at FROM kb_chunks
		 WHERE agent_id = ? AND content LIKE ? ORDER BY created_at ASC LIMIT ?`,
		agentID, "%"+query+"%", limit)
}

// DeleteChunk removes a chunk. Reports false when it does not exist.
func (s *Store) DeleteChunk(ctx context.Context, agentID, chunkID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kb_chunks WHERE agent_id = ? AND chunk_id = ?`, agentID, chunkID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...interface{}) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.AgentID, &c.Source, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
