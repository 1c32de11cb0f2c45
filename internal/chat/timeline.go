package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Status tracks a message through its lifecycle. Complete and errored
// messages are immutable.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusErrored   Status = "errored"
)

// Message is one turn's utterance. User messages carry a client-assigned
// id; agent messages keep a client-assigned placeholder id until the
// terminator frame supplies the server-assigned one.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Status    Status
	CreatedAt time.Time
}

// Timeline is the append-only ordered record of a conversation. At most
// one message is streaming at any time, and it is always the most recently
// appended agent message. Streamed content can only be applied through
// AppendContent/Finalize/Fail, which keeps finished messages immutable
// even when stray frames arrive.
type Timeline struct {
	messages  []Message
	index     map[string]int
	streaming int // index of the streaming message, -1 when none
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		index:     make(map[string]int),
		streaming: -1,
	}
}

// Append adds msg to the end of the timeline.
func (t *Timeline) Append(msg Message) {
	t.messages = append(t.messages, msg)
	idx := len(t.messages) - 1
	t.index[msg.ID] = idx
	if msg.Status == StatusStreaming {
		t.streaming = idx
	}
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// ByID returns a copy of the message with the given id.
func (t *Timeline) ByID(id string) (Message, bool) {
	idx, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	return t.messages[idx], true
}

// Streaming returns a copy of the in-flight agent message, if any.
func (t *Timeline) Streaming() (Message, bool) {
	if t.streaming < 0 {
		return Message{}, false
	}
	return t.messages[t.streaming], true
}

// AppendContent appends chunk to the streaming message. It reports false,
// without mutating anything, when no message is streaming.
func (t *Timeline) AppendContent(chunk string) bool {
	if t.streaming < 0 {
		return false
	}
	t.messages[t.streaming].Content += chunk
	return true
}

// Finalize replaces the streaming message's placeholder id with finalID
// and marks it complete. It reports false when no message is streaming.
func (t *Timeline) Finalize(finalID string) bool {
	if t.streaming < 0 {
		return false
	}
	idx := t.streaming
	delete(t.index, t.messages[idx].ID)
	t.messages[idx].ID = finalID
	t.messages[idx].Status = StatusComplete
	t.index[finalID] = idx
	t.streaming = -1
	return true
}

// Fail marks the streaming message errored, keeping any partial content.
// It reports false when no message is streaming.
func (t *Timeline) Fail() bool {
	if t.streaming < 0 {
		return false
	}
	t.messages[t.streaming].Status = StatusErrored
	t.streaming = -1
	return true
}

// Messages returns a copy of the timeline in conversation order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
