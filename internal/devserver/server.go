// Package devserver provides a local stand-in for the agent chat backend:
// agent CRUD, knowledge-base routes and a streaming WebSocket chat
// endpoint. It backs cmd/fake-backend and the integration tests.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ZahurZaidi/Bawaal/internal/protocol"
)

// closeBadToken is sent when the token query parameter is missing or
// rejected, mirroring the production backend.
const closeBadToken = 4001

// ReplyFunc produces the reply tokens streamed back for one user message.
type ReplyFunc func(agent *Agent, message string) []string

// EchoReply is the default ReplyFunc: it repeats the user's message word
// by word.
func EchoReply(agent *Agent, message string) []string {
	words := strings.Fields("You said: " + message)
	tokens := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// Server serves the development backend.
type Server struct {
	store      *Store
	reply      ReplyFunc
	token      string // expected bearer token; empty accepts any non-empty token
	tokenDelay time.Duration
	upgrader   websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithReply overrides the scripted reply function.
func WithReply(fn ReplyFunc) Option {
	return func(s *Server) { s.reply = fn }
}

// WithToken requires the given token on chat connections.
func WithToken(tok string) Option {
	return func(s *Server) { s.token = tok }
}

// WithTokenDelay inserts a pause between streamed tokens.
func WithTokenDelay(d time.Duration) Option {
	return func(s *Server) { s.tokenDelay = d }
}

// New creates a development backend over the given store.
func New(store *Store, opts ...Option) *Server {
	s := &Server{
		store: store,
		reply: EchoReply,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Local development backend, all origins allowed
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes registers all backend routes on e.
func (s *Server) Routes(e *echo.Echo) {
	e.GET("/health", s.Health)

	e.POST("/agents", s.CreateAgent)
	e.GET("/agents", s.ListAgents)
	e.GET("/agents/:agent_id", s.GetAgent)
	e.PUT("/agents/:agent_id", s.UpdateAgent)
	e.DELETE("/agents/:agent_id", s.DeleteAgent)

	e.POST("/agents/:agent_id/kb/upload", s.UploadFile)
	e.GET("/agents/:agent_id/kb", s.ListChunks)
	e.GET("/agents/:agent_id/kb/search", s.SearchChunks)
	e.DELETE("/agents/:agent_id/kb/chunks/:chunk_id", s.DeleteChunk)

	e.GET("/chat/logs/:agent_id", s.ChatLogs)
	e.GET("/conversations/:conversation_id/messages", s.ConversationMessages)
	e.GET("/chat/:agent_id", s.HandleChat)
}

// Handler returns a ready-to-serve http.Handler, used by tests.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.Routes(e)
	return e
}

// Health reports liveness.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type agentRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
}

// CreateAgent handles POST /agents.
func (s *Server) CreateAgent(c echo.Context) error {
	var req agentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, errorBody("name is required"))
	}

	agent := &Agent{
		AgentID:      uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAgent(c.Request().Context(), agent); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusCreated, agent)
}

// ListAgents handles GET /agents.
func (s *Server) ListAgents(c echo.Context) error {
	agents, err := s.store.ListAgents(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, agents)
}

// GetAgent handles GET /agents/:agent_id.
func (s *Server) GetAgent(c echo.Context) error {
	agent, err := s.store.GetAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	if agent == nil {
		return c.JSON(http.StatusNotFound, errorBody("agent not found"))
	}
	return c.JSON(http.StatusOK, agent)
}

// UpdateAgent handles PUT /agents/:agent_id.
func (s *Server) UpdateAgent(c echo.Context) error {
	var req agentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	agent := &Agent{
		AgentID:      c.Param("agent_id"),
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
	}
	ok, err := s.store.UpdateAgent(c.Request().Context(), agent)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody("agent not found"))
	}
	return c.JSON(http.StatusOK, agent)
}

// DeleteAgent handles DELETE /agents/:agent_id.
func (s *Server) DeleteAgent(c echo.Context) error {
	ok, err := s.store.DeleteAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody("agent not found"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// UploadFile handles POST /agents/:agent_id/kb/upload. The uploaded file
// is split into fixed-size chunks, one row each.
func (s *Server) UploadFile(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	if agent == nil {
		return c.JSON(http.StatusNotFound, errorBody("agent not found"))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("file is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	chunks := splitChunks(string(content), 1000)
	for _, text := range chunks {
		chunk := &Chunk{
			ChunkID:   uuid.NewString(),
			AgentID:   agentID,
			Source:    fh.Filename,
			Content:   text,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.CreateChunk(ctx, chunk); err != nil {
			return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"filename": fh.Filename,
		"chunks":   len(chunks),
	})
}

// ListChunks handles GET /agents/:agent_id/kb.
func (s *Server) ListChunks(c echo.Context) error {
	chunks, err := s.store.ListChunks(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, chunks)
}

// SearchChunks handles GET /agents/:agent_id/kb/search.
func (s *Server) SearchChunks(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	chunks, err := s.store.SearchChunks(c.Request().Context(),
		c.Param("agent_id"), c.QueryParam("query"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, chunks)
}

// DeleteChunk handles DELETE /agents/:agent_id/kb/chunks/:chunk_id.
func (s *Server) DeleteChunk(c echo.Context) error {
	ok, err := s.store.DeleteChunk(c.Request().Context(),
		c.Param("agent_id"), c.Param("chunk_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody("chunk not found"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// ChatLogs handles GET /chat/logs/:agent_id.
func (s *Server) ChatLogs(c echo.Context) error {
	convs, err := s.store.ListConversations(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, convs)
}

// ConversationMessages handles GET /conversations/:conversation_id/messages.
func (s *Server) ConversationMessages(c echo.Context) error {
	msgs, err := s.store.ListMessages(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, msgs)
}

// HandleChat handles the streaming WebSocket endpoint GET /chat/:agent_id.
// Each inbound {"message": ...} frame is answered with a sequence of token
// frames and a final end frame carrying the stored message id.
func (s *Server) HandleChat(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")
	token := c.QueryParam("token")

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade chat WebSocket: %v", err)
		return err
	}
	defer ws.Close()

	// The production backend validates the token before accepting; over
	// gorilla the handshake has already happened, so reject with the same
	// application close code instead.
	if token == "" || (s.token != "" && token != s.token) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeBadToken, "authentication failed"),
			time.Now().Add(time.Second))
		return nil
	}

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil || agent == nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeBadToken+1, "agent not found"),
			time.Now().Add(time.Second))
		return nil
	}

	conv := &Conversation{
		ConversationID: uuid.NewString(),
		AgentID:        agentID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateConversation(context.Background(), conv); err != nil {
		log.Printf("Failed to create conversation: %v", err)
		return nil
	}

	log.Printf("Chat connection established (agent: %s, conversation: %s)", agentID, conv.ConversationID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Chat WebSocket error: %v", err)
			}
			return nil
		}

		var in protocol.OutboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			log.Printf("Invalid chat frame: %v", err)
			continue
		}

		if err := s.streamReply(ws, agent, conv, in.Message); err != nil {
			log.Printf("Failed to stream reply: %v", err)
			return nil
		}
	}
}

// streamReply stores the user message, streams the scripted reply token by
// token and finishes with an end frame.
func (s *Server) streamReply(ws *websocket.Conn, agent *Agent, conv *Conversation, message string) error {
	ctx := context.Background()

	userMsg := &StoredMessage{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		Role:           "user",
		Content:        message,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("store user message: %w", err)
	}

	tokens := s.reply(agent, message)
	var full strings.Builder
	for _, tok := range tokens {
		full.WriteString(tok)
		frame := protocol.Frame{Type: protocol.TypeToken, Content: tok}
		if err := ws.WriteJSON(frame); err != nil {
			return fmt.Errorf("write token frame: %w", err)
		}
		if s.tokenDelay > 0 {
			time.Sleep(s.tokenDelay)
		}
	}

	agentMsg := &StoredMessage{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		Role:           "agent",
		Content:        full.String(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, agentMsg); err != nil {
		return fmt.Errorf("store agent message: %w", err)
	}

	end := protocol.Frame{Type: protocol.TypeEnd, MessageID: agentMsg.MessageID}
	if err := ws.WriteJSON(end); err != nil {
		return fmt.Errorf("write end frame: %w", err)
	}
	return nil
}

// splitChunks slices text into pieces of at most size runes.
func splitChunks(text string, size int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	chunks := []string{}
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
