// internal/realtime/call.go
package realtime

import "time"

// CallState is the lifecycle state of a call. Ringing and Connected are the
// only non-terminal states; Connected transitions to Ended, everything else
// is final.
type CallState string

const (
	CallRinging   CallState = "ringing"
	CallConnected CallState = "connected"
	CallEnded     CallState = "ended"
	CallRejected  CallState = "rejected"
	CallFailed    CallState = "failed"
	CallCancelled CallState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s CallState) Terminal() bool {
	return s != CallRinging && s != CallConnected
}

// EndReason explains why a call reached a terminal state.
type EndReason string

const (
	ReasonHangup           EndReason = "hangup"
	ReasonCancelled        EndReason = "cancelled"
	ReasonRejected         EndReason = "rejected"
	ReasonPeerDisconnected EndReason = "peer-disconnected"
	ReasonDeliveryFailed   EndReason = "delivery-failed"
)

// Call is one in-progress call attempt or active call between exactly two
// users. Participants are tracked as user ids, not connection ids: a user's
// live connection is resolved through the registry at each relay.
type Call struct {
	ID       string
	RoomID   string
	CallerID string
	CalleeID string

	State  CallState
	Reason EndReason

	CreatedAt   time.Time
	ConnectedAt *time.Time
	EndedAt     *time.Time
}

// OtherParty returns the participant opposite userID, or "" if userID is
// not part of the call.
func (c *Call) OtherParty(userID string) string {
	switch userID {
	case c.CallerID:
		return c.CalleeID
	case c.CalleeID:
		return c.CallerID
	}
	return ""
}

// involves reports whether userID is a participant.
func (c *Call) involves(userID string) bool {
	return userID == c.CallerID || userID == c.CalleeID
}

// snapshot returns a copy safe to hand outside the broker's lock.
func (c *Call) snapshot() *Call {
	cp := *c
	if c.ConnectedAt != nil {
		t := *c.ConnectedAt
		cp.ConnectedAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// pairKey is the unordered user pair a call belongs to. At most one
// non-terminal call may exist per pair.
type pairKey struct {
	a, b string
}

func makePairKey(x, y string) pairKey {
	if x < y {
		return pairKey{x, y}
	}
	return pairKey{y, x}
}
