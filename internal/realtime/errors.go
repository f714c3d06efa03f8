// internal/realtime/errors.go
package realtime

import "errors"

// Component-level errors. The dispatcher translates these into outbound
// error events or silent drops; they never terminate a connection's
// processing loop.
var (
	// ErrNotAuthorized means the user has no access to the room. Surfaced
	// to the sender only; the event is dropped.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrPeerOffline means the call target has no live connection. Surfaced
	// to the caller; no call is created.
	ErrPeerOffline = errors.New("peer offline")

	// ErrCallInProgress means a non-terminal call already exists for the
	// pair. The existing call wins; the new request is refused, not queued.
	ErrCallInProgress = errors.New("call in progress")

	// ErrInvalidState means the event does not match the current connection
	// or call state. Logged and dropped; expected under network jitter.
	ErrInvalidState = errors.New("invalid state")
)

// Error codes used in outbound error and call-failed events.
const (
	CodeNotAuthorized  = "not_authorized"
	CodePeerOffline    = "peer_offline"
	CodeCallInProgress = "call_in_progress"
	CodeNotIdentified  = "not_identified"
	CodeInvalidPayload = "invalid_payload"
)
