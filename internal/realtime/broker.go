// internal/realtime/broker.go
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markb/linglite/internal/log"
)

// CallArchiver persists terminal calls for history purposes. Backed by the
// relational store; a nil archiver discards them.
type CallArchiver interface {
	ArchiveCall(call *Call) error
}

// Broker coordinates offer/answer/ICE relay and the call lifecycle between
// exactly two users. All call state is in-memory and mutated under one
// lock; signaling payloads are relayed opaquely and never persisted.
type Broker struct {
	mu     sync.Mutex
	calls  map[string]*Call   // callID -> call, non-terminal only
	byPair map[pairKey]string // unordered pair -> active callID

	reg      *Registry
	archiver CallArchiver
	clock    func() time.Time
}

// NewBroker creates a call broker. archiver may be nil.
func NewBroker(reg *Registry, archiver CallArchiver) *Broker {
	return &Broker{
		calls:    make(map[string]*Call),
		byPair:   make(map[pairKey]string),
		reg:      reg,
		archiver: archiver,
		clock:    time.Now,
	}
}

// ActiveCalls returns the number of non-terminal calls.
func (b *Broker) ActiveCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// Initiate places a call from caller to callee and relays the offer to
// every live connection of the callee; the first connection to respond
// wins. Fails with ErrPeerOffline if the callee has no live connection and
// with ErrCallInProgress if a non-terminal call already exists for the pair
// (the existing call wins — this is the tie-break when both sides dial each
// other at once).
func (b *Broker) Initiate(callerID, calleeID, roomID string, offer json.RawMessage) (*Call, error) {
	if callerID == calleeID || calleeID == "" {
		return nil, ErrInvalidState
	}
	if !b.reg.IsOnline(calleeID) {
		return nil, ErrPeerOffline
	}

	key := makePairKey(callerID, calleeID)

	b.mu.Lock()
	if _, exists := b.byPair[key]; exists {
		b.mu.Unlock()
		return nil, ErrCallInProgress
	}
	call := &Call{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		State:     CallRinging,
		CreatedAt: b.clock(),
	}
	b.calls[call.ID] = call
	b.byPair[key] = call.ID
	b.mu.Unlock()

	// Ring every device; the broker accepts exactly one answer.
	if b.reg.SendToUser(calleeID, NewIncomingCallMessage(call, offer)) == 0 {
		// The callee dropped between the online check and the relay.
		b.finish(call.ID, CallFailed, ReasonDeliveryFailed)
		return nil, ErrPeerOffline
	}

	log.Debug("realtime: call ringing", "call_id", call.ID, "caller", callerID, "callee", calleeID)
	return call.snapshot(), nil
}

// Accept answers a ringing call and relays the answer to the caller. Valid
// only from Ringing and only for the callee; anything else returns
// ErrInvalidState, which callers treat as a no-op (a second device
// answering after the race is lost just learns the call is gone).
func (b *Broker) Accept(calleeID, callID string, answer json.RawMessage) error {
	b.mu.Lock()
	call, ok := b.calls[callID]
	if !ok || call.State != CallRinging || call.CalleeID != calleeID {
		b.mu.Unlock()
		return ErrInvalidState
	}
	now := b.clock()
	call.State = CallConnected
	call.ConnectedAt = &now
	callerID := call.CallerID
	b.mu.Unlock()

	b.reg.SendToUser(callerID, NewCallAcceptedMessage(callID, answer))
	log.Debug("realtime: call connected", "call_id", callID)
	return nil
}

// Reject declines a ringing call and notifies the caller. Valid only from
// Ringing and only for the callee.
func (b *Broker) Reject(calleeID, callID string) error {
	b.mu.Lock()
	call, ok := b.calls[callID]
	if !ok || call.State != CallRinging || call.CalleeID != calleeID {
		b.mu.Unlock()
		return ErrInvalidState
	}
	callerID := call.CallerID
	b.mu.Unlock()

	b.finish(callID, CallRejected, ReasonRejected)
	b.reg.SendToUser(callerID, NewCallRejectedMessage(callID))
	return nil
}

// RelayICE forwards an ICE candidate to the other participant. Valid while
// the call is Ringing or Connected; candidates arriving after the call
// reached a terminal state are dropped silently, since network jitter makes
// them expected and they must not resurrect a dead call.
func (b *Broker) RelayICE(userID, callID string, candidate json.RawMessage) {
	b.mu.Lock()
	call, ok := b.calls[callID]
	if !ok || !call.involves(userID) {
		b.mu.Unlock()
		log.Debug("realtime: ice candidate for unknown or finished call", "call_id", callID, "user_id", userID)
		return
	}
	other := call.OtherParty(userID)
	b.mu.Unlock()

	b.reg.SendToUser(other, NewIceCandidateMessage(callID, candidate))
}

// End hangs up a call. A caller ending a still-ringing call cancels it; a
// participant ending a connected call ends it. The other party is notified
// either way. Returns ErrInvalidState if the call is unknown, terminal, or
// does not involve userID.
func (b *Broker) End(userID, callID string, reason EndReason) error {
	if reason == "" {
		reason = ReasonHangup
	}

	b.mu.Lock()
	call, ok := b.calls[callID]
	if !ok || !call.involves(userID) {
		b.mu.Unlock()
		return ErrInvalidState
	}
	state := CallEnded
	if call.State == CallRinging {
		state = CallCancelled
		reason = ReasonCancelled
	}
	other := call.OtherParty(userID)
	b.mu.Unlock()

	b.finish(callID, state, reason)
	b.reg.SendToUser(other, NewCallEndedMessage(callID, reason))
	return nil
}

// PeerDisconnected force-ends any non-terminal call involving userID,
// notifying the remaining party so their client can tear down its peer
// connection. Invoked from the disconnect cleanup sequence when the user's
// last connection closes.
func (b *Broker) PeerDisconnected(userID string) {
	b.mu.Lock()
	var ended []*Call
	for _, call := range b.calls {
		if call.involves(userID) {
			ended = append(ended, call)
		}
	}
	b.mu.Unlock()

	for _, call := range ended {
		other := call.OtherParty(userID)
		b.finish(call.ID, CallEnded, ReasonPeerDisconnected)
		b.reg.SendToUser(other, NewCallEndedMessage(call.ID, ReasonPeerDisconnected))
		log.Debug("realtime: call force-ended on disconnect", "call_id", call.ID, "user_id", userID)
	}
}

// finish moves a call to a terminal state, removes it from the live tables
// and hands it to the archiver.
func (b *Broker) finish(callID string, state CallState, reason EndReason) {
	b.mu.Lock()
	call, ok := b.calls[callID]
	if !ok {
		b.mu.Unlock()
		return
	}
	now := b.clock()
	call.State = state
	call.Reason = reason
	call.EndedAt = &now
	delete(b.calls, callID)
	delete(b.byPair, makePairKey(call.CallerID, call.CalleeID))
	archived := call.snapshot()
	b.mu.Unlock()

	if b.archiver != nil {
		if err := b.archiver.ArchiveCall(archived); err != nil {
			log.Warn("realtime: call archive failed", "call_id", callID, "error", err.Error())
		}
	}
}
