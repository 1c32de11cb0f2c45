// Package chat implements the real-time conversation session manager: one
// persistent socket per agent conversation, token-by-token reply assembly,
// strict turn serialization and automatic reconnection.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ZahurZaidi/Bawaal/internal/auth"
	"github.com/ZahurZaidi/Bawaal/internal/protocol"
)

// ConnState describes the connection lifecycle. Closed is terminal and is
// only reached via an explicit Disconnect.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateClosed       ConnState = "closed"
)

// ErrSessionClosed is returned by Connect after Disconnect has been called.
var ErrSessionClosed = errors.New("session closed")

// Options configure a Session. Zero fields fall back to defaults.
type Options struct {
	// ChatBaseURL is the streaming endpoint base, e.g. "ws://host:8000".
	ChatBaseURL string
	// Tokens supplies the bearer credential for the transport handshake.
	Tokens auth.TokenSource
	// Dialer opens the transport. Defaults to a WSDialer.
	Dialer Dialer

	MaxMessageChars    int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// StreamTimeout bounds how long a turn may stay streaming without a
	// terminator before it is failed with a StreamError.
	StreamTimeout time.Duration
	DialTimeout   time.Duration
}

const (
	defaultMaxMessageChars    = 1000
	defaultReconnectBaseDelay = 3 * time.Second
	defaultReconnectMaxDelay  = 30 * time.Second
	defaultStreamTimeout      = 2 * time.Minute
	defaultDialTimeout        = 15 * time.Second
)

// eventKind tags the closed set of events that may mutate session state.
type eventKind int

const (
	evOpened eventKind = iota
	evDialFailed
	evClosed
	evFrame
	evSend
	evDisconnect
	evReconnectDue
	evStreamTimeout
)

// event is one unit of work for the session's event processor.
type event struct {
	kind     eventKind
	gen      int    // connection generation the event belongs to
	conn     Conn   // evOpened
	code     int    // evClosed
	err      error  // evClosed, evDialFailed
	data     []byte // evFrame
	text     string // evSend
	msgID    string // evStreamTimeout
	retrying bool   // evDialFailed: attempt came from the reconnect timer
}

// Session owns one conversation with one agent: the message timeline, the
// transport and the reconnect/stream timers. All mutation goes through
// process, so command handlers, transport events and inbound frames never
// overlap.
type Session struct {
	agentID string
	opts    Options

	updates chan struct{}

	mu             sync.Mutex
	state          ConnState
	timeline       *Timeline
	conn           Conn
	connGen        int
	reconnectTimer *time.Timer
	streamTimer    *time.Timer
	retry          backoff
	lastErr        error
}

// NewSession creates a session for one agent conversation. The transport
// is not opened until Connect is called.
func NewSession(agentID string, opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = &WSDialer{HandshakeTimeout: opts.DialTimeout}
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.Static("")
	}
	if opts.MaxMessageChars == 0 {
		opts.MaxMessageChars = defaultMaxMessageChars
	}
	if opts.ReconnectBaseDelay == 0 {
		opts.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if opts.ReconnectMaxDelay == 0 {
		opts.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if opts.StreamTimeout == 0 {
		opts.StreamTimeout = defaultStreamTimeout
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	return &Session{
		agentID:  agentID,
		opts:     opts,
		updates:  make(chan struct{}, 1),
		state:    StateDisconnected,
		timeline: NewTimeline(),
		retry: backoff{
			base: opts.ReconnectBaseDelay,
			max:  opts.ReconnectMaxDelay,
		},
	}
}

// Connect establishes the chat transport. It blocks until the socket is
// open or the attempt fails. Connecting an already connected session is a
// no-op; connecting a closed session returns ErrSessionClosed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateConnecting, StateConnected:
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.connGen++
	gen := s.connGen
	s.mu.Unlock()
	s.notify()

	return s.dial(ctx, gen, false)
}

// Send validates and transmits one user message. A nil return means the
// turn was admitted: the user message and a streaming placeholder were
// appended and the frame was written. Rejections return a
// *SendRejectedError and leave the timeline untouched, so the caller can
// keep the input for retry.
func (s *Session) Send(text string) error {
	return s.process(event{kind: evSend, text: text})
}

// Disconnect closes the session permanently. It is idempotent: timers are
// cancelled and the transport closed exactly once, and no reconnect is
// ever scheduled afterward.
func (s *Session) Disconnect() {
	s.process(event{kind: evDisconnect})
}

// Updates signals that observable state changed. Notifications coalesce;
// receivers should call Snapshot for the current state.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Snapshot is an immutable view of session state for the presentation
// layer.
type Snapshot struct {
	State            ConnState
	Messages         []Message
	Typing           bool
	ReconnectPending bool
	Err              error
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, typing := s.timeline.Streaming()
	return Snapshot{
		State:            s.state,
		Messages:         s.timeline.Messages(),
		Typing:           typing,
		ReconnectPending: s.reconnectTimer != nil,
		Err:              s.lastErr,
	}
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the timeline in conversation order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

// process is the single event-processing entry point. The mutex serializes
// user commands, transport lifecycle events, inbound frames and timer
// fires, so handlers never observe each other's partial state.
func (s *Session) process(ev event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notify()

	switch ev.kind {
	case evOpened:
		s.handleOpened(ev)
	case evDialFailed:
		s.handleDialFailed(ev)
	case evClosed:
		s.handleClosed(ev)
	case evFrame:
		s.handleFrame(ev)
	case evSend:
		return s.handleSend(ev.text)
	case evDisconnect:
		s.handleDisconnect()
	case evReconnectDue:
		s.handleReconnectDue()
	case evStreamTimeout:
		s.handleStreamTimeout(ev.msgID)
	}
	return nil
}

func (s *Session) handleOpened(ev event) {
	if s.state == StateClosed || ev.gen != s.connGen {
		// User left or a newer attempt superseded this one.
		ev.conn.Close()
		return
	}
	s.conn = ev.conn
	s.state = StateConnected
	s.retry.reset()
	s.lastErr = nil
	log.Printf("Chat connected (agent: %s)", s.agentID)
	go s.readPump(ev.conn, ev.gen)
}

func (s *Session) handleDialFailed(ev event) {
	if s.state == StateClosed || ev.gen != s.connGen {
		return
	}
	s.state = StateDisconnected
	s.lastErr = ev.err

	// Only reconnect attempts reschedule themselves. A failed initial
	// Connect surfaces to the caller, and a missing credential is not
	// retryable without a new one.
	var authErr *AuthError
	if ev.retrying && !errors.As(ev.err, &authErr) {
		s.scheduleReconnect()
	}
}

func (s *Session) handleClosed(ev event) {
	if ev.gen != s.connGen {
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.state == StateClosed {
		return
	}
	s.stopStreamTimer()
	if s.timeline.Fail() {
		log.Printf("Chat closed mid-stream, turn marked errored (agent: %s)", s.agentID)
	}
	s.state = StateDisconnected
	s.lastErr = &ConnectionError{Err: ev.err}
	if protocol.AbnormalClose(ev.code) {
		s.scheduleReconnect()
	} else {
		log.Printf("Chat closed by peer: code=%d (agent: %s)", ev.code, s.agentID)
	}
}

func (s *Session) handleFrame(ev event) {
	if s.state != StateConnected || ev.gen != s.connGen {
		return
	}
	frame, err := protocol.ParseFrame(ev.data)
	if err != nil {
		s.lastErr = &StreamError{Reason: err.Error()}
		return
	}
	switch frame.Type {
	case protocol.TypeToken:
		// Dropped when no turn is in flight: streamed content must never
		// be attributed to the wrong turn.
		s.timeline.AppendContent(frame.Content)
	case protocol.TypeEnd:
		s.stopStreamTimer()
		s.timeline.Finalize(frame.MessageID)
	}
}

func (s *Session) handleSend(text string) error {
	reject := func(reason RejectReason) error {
		err := &SendRejectedError{Reason: reason}
		s.lastErr = err
		return err
	}

	if s.state != StateConnected {
		return reject(RejectNotConnected)
	}
	if _, streaming := s.timeline.Streaming(); streaming {
		return reject(RejectTurnInFlight)
	}
	if strings.TrimSpace(text) == "" {
		return reject(RejectEmptyMessage)
	}
	if utf8.RuneCountInString(text) > s.opts.MaxMessageChars {
		return reject(RejectTooLong)
	}

	now := time.Now()
	s.timeline.Append(Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Status:    StatusComplete,
		CreatedAt: now,
	})
	placeholderID := uuid.NewString()
	s.timeline.Append(Message{
		ID:        placeholderID,
		Role:      RoleAgent,
		Status:    StatusStreaming,
		CreatedAt: now,
	})

	frame, err := protocol.EncodeOutbound(text)
	if err != nil {
		s.timeline.Fail()
		return fmt.Errorf("encode outbound frame: %w", err)
	}
	if err := s.conn.WriteMessage(frame); err != nil {
		// The read pump will surface the closure; fail the turn now so
		// the caller sees it immediately.
		s.timeline.Fail()
		cerr := &ConnectionError{Err: err}
		s.lastErr = cerr
		return cerr
	}

	s.streamTimer = time.AfterFunc(s.opts.StreamTimeout, func() {
		s.process(event{kind: evStreamTimeout, msgID: placeholderID})
	})
	return nil
}

func (s *Session) handleDisconnect() {
	if s.state == StateClosed {
		return
	}
	s.stopReconnectTimer()
	s.stopStreamTimer()
	s.timeline.Fail()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connGen++
	s.state = StateClosed
	log.Printf("Chat session closed (agent: %s)", s.agentID)
}

func (s *Session) handleReconnectDue() {
	s.reconnectTimer = nil
	if s.state != StateDisconnected {
		return
	}
	s.state = StateConnecting
	s.connGen++
	gen := s.connGen
	go s.redial(gen)
}

func (s *Session) handleStreamTimeout(msgID string) {
	msg, ok := s.timeline.Streaming()
	if !ok || msg.ID != msgID {
		return
	}
	s.streamTimer = nil
	s.timeline.Fail()
	s.lastErr = &StreamError{Reason: "no terminator received within timeout"}
	log.Printf("Stream stalled, turn marked errored (agent: %s)", s.agentID)
}

// scheduleReconnect arms the single reconnect slot. A second abnormal
// closure while an attempt is pending does not schedule another.
func (s *Session) scheduleReconnect() {
	if s.reconnectTimer != nil {
		return
	}
	delay := s.retry.next()
	log.Printf("Chat disconnected, reconnecting in %s (agent: %s)", delay.Round(time.Millisecond), s.agentID)
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.process(event{kind: evReconnectDue})
	})
}

func (s *Session) stopReconnectTimer() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) stopStreamTimer() {
	if s.streamTimer != nil {
		s.streamTimer.Stop()
		s.streamTimer = nil
	}
}

// dial acquires a credential, opens the transport and feeds the outcome
// back into the event processor.
func (s *Session) dial(ctx context.Context, gen int, retrying bool) error {
	tok, err := s.opts.Tokens.Token(ctx)
	if err != nil {
		aerr := &AuthError{Reason: err.Error()}
		s.process(event{kind: evDialFailed, gen: gen, err: aerr, retrying: retrying})
		return aerr
	}

	endpoint := chatURL(s.opts.ChatBaseURL, s.agentID, tok)
	conn, err := s.opts.Dialer.Dial(ctx, endpoint)
	if err != nil {
		cerr := &ConnectionError{Err: err}
		s.process(event{kind: evDialFailed, gen: gen, err: cerr, retrying: retrying})
		return cerr
	}

	s.process(event{kind: evOpened, gen: gen, conn: conn})
	return nil
}

func (s *Session) redial(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DialTimeout)
	defer cancel()
	s.dial(ctx, gen, true)
}

// readPump delivers inbound frames and the final close in transport order.
// Events from a superseded connection are discarded by generation.
func (s *Session) readPump(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.process(event{kind: evClosed, gen: gen, code: closeCode(err), err: err})
			return
		}
		s.process(event{kind: evFrame, gen: gen, data: data})
	}
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func chatURL(base, agentID, token string) string {
	return fmt.Sprintf("%s/chat/%s?token=%s",
		strings.TrimSuffix(base, "/"), url.PathEscape(agentID), url.QueryEscape(token))
}
