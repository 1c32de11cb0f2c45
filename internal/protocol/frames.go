// Package protocol defines the wire frames exchanged with the chat backend.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame types from backend to client.
const (
	TypeToken = "token"
	TypeEnd   = "end"
)

// Reserved close codes that indicate a deliberate close. Anything else is
// an abnormal closure.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

// Frame is an inbound frame from the backend.
type Frame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// OutboundFrame carries one user utterance to the backend.
type OutboundFrame struct {
	Message string `json:"message"`
}

// EncodeOutbound encodes one user utterance for the wire.
func EncodeOutbound(message string) ([]byte, error) {
	return json.Marshal(OutboundFrame{Message: message})
}

// ParseFrame decodes an inbound frame and validates its type.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	switch f.Type {
	case TypeToken, TypeEnd:
		return &f, nil
	default:
		return nil, fmt.Errorf("unknown frame type: %q", f.Type)
	}
}

// AbnormalClose reports whether a close code should trigger reconnection.
func AbnormalClose(code int) bool {
	return code != CloseNormal && code != CloseGoingAway
}
