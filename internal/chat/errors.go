package chat

import "fmt"

// AuthError indicates no usable credential was available at connect time.
// It is not retryable without new credentials, so the connection manager
// never schedules a reconnect for it.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// ConnectionError indicates the transport failed to open or errored while
// open. Subject to the reconnection policy unless the session is closed.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RejectReason identifies the send precondition that failed.
type RejectReason string

const (
	RejectNotConnected RejectReason = "not_connected"
	RejectTurnInFlight RejectReason = "turn_in_flight"
	RejectEmptyMessage RejectReason = "empty_message"
	RejectTooLong      RejectReason = "message_too_long"
)

// SendRejectedError reports a send that failed local admission checks.
// It is surfaced synchronously and never retried by the session.
type SendRejectedError struct {
	Reason RejectReason
}

func (e *SendRejectedError) Error() string {
	return "send rejected: " + string(e.Reason)
}

// StreamError indicates a malformed or out-of-place inbound frame, or a
// stream that stalled past the configured timeout.
type StreamError struct {
	Reason string
}

func (e *StreamError) Error() string {
	return "stream: " + e.Reason
}
