// internal/realtime/dispatcher.go
package realtime

import (
	"time"

	"github.com/markb/linglite/internal/log"
)

// RoomAuthorizer answers whether a user may join a conversation room.
// Backed by the persistent store (conversation membership); this core only
// consumes the boolean.
type RoomAuthorizer interface {
	CanAccessRoom(userID, roomID string) (bool, error)
}

// StoredMessage is what the message store reports back after persisting a
// chat message, so the live fan-out carries the canonical id and timestamp.
type StoredMessage struct {
	ID        string
	CreatedAt time.Time
}

// MessageStore persists chat messages before they are broadcast, so history
// survives regardless of realtime delivery.
type MessageStore interface {
	SaveMessage(roomID, senderID, body, attachmentURL string) (*StoredMessage, error)
}

// Dispatcher is the single entry point for inbound realtime events. It
// validates event shape, resolves the acting user from the registry and
// routes to presence, rooms and the call broker, translating component
// errors into outbound events. All errors are handled here; none ever
// crashes a connection's processing loop or affects other connections.
type Dispatcher struct {
	reg      *Registry
	presence *Presence
	rooms    *Rooms
	broker   *Broker

	auth RoomAuthorizer
	msgs MessageStore
}

// NewDispatcher wires the dispatcher to its components and collaborators.
// auth and msgs may be nil, which disables room authorization (all joins
// refused) and message persistence (send-message refused) respectively.
func NewDispatcher(reg *Registry, presence *Presence, rooms *Rooms, broker *Broker, auth RoomAuthorizer, msgs MessageStore) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		presence: presence,
		rooms:    rooms,
		broker:   broker,
		auth:     auth,
		msgs:     msgs,
	}
}

// Connect registers a new transport and returns its connection id. The
// connection stays unidentified until the client's identify event.
func (d *Dispatcher) Connect(sender Sender, expectedUserID string) string {
	return d.reg.Open(sender, expectedUserID)
}

// Disconnect unwinds everything the connection touched: registry entry,
// presence (if this was the user's last connection), in-flight calls, and
// room memberships. Disconnect is the only cancellation primitive, so the
// unwind completes synchronously before it returns.
func (d *Dispatcher) Disconnect(connID string) {
	userID, last := d.reg.Close(connID)
	if userID != "" {
		d.presence.ConnectionRemoved(userID, last)
		if last {
			d.broker.PeerDisconnected(userID)
		}
	}
	d.rooms.LeaveAll(connID)
}

// Handle processes one inbound event from a connection. Events from the
// same connection are processed in arrival order by the connection's read
// loop; Handle itself never blocks on another user's state.
func (d *Dispatcher) Handle(connID string, data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		log.Debug("realtime: invalid message", "conn_id", connID, "error", err.Error())
		d.reg.SendToConn(connID, NewErrorMessage(CodeInvalidPayload, "malformed event"))
		return
	}

	if msg.Event == EventIdentify {
		d.handleIdentify(connID, msg)
		return
	}

	userID, ok := d.reg.UserFor(connID)
	if !ok {
		d.reg.SendToConn(connID, NewErrorMessage(CodeNotIdentified, "identify first"))
		return
	}

	switch msg.Event {
	case EventJoinRoom:
		d.handleJoinRoom(connID, userID, msg)
	case EventLeaveRoom:
		d.handleLeaveRoom(connID, msg)
	case EventSendMessage:
		d.handleSendMessage(connID, userID, msg)
	case EventTyping:
		d.handleTyping(connID, userID, msg, EventUserTyping)
	case EventStopTyping:
		d.handleTyping(connID, userID, msg, EventUserStoppedTyping)
	case EventCallUser:
		d.handleCallUser(connID, userID, msg)
	case EventAcceptCall:
		d.handleAcceptCall(userID, msg)
	case EventRejectCall:
		d.handleRejectCall(userID, msg)
	case EventIceCandidate:
		d.handleIceCandidate(userID, msg)
	case EventEndCall:
		d.handleEndCall(userID, msg)
	default:
		log.Debug("realtime: unknown event", "conn_id", connID, "event", msg.Event)
	}
}

func (d *Dispatcher) handleIdentify(connID string, msg *Message) {
	var p IdentifyPayload
	if err := msg.decodePayload(&p); err != nil {
		d.reg.SendToConn(connID, NewErrorMessage(CodeInvalidPayload, err.Error()))
		return
	}

	first, err := d.reg.Identify(connID, p.UserID)
	if err != nil {
		log.Debug("realtime: identify rejected", "conn_id", connID, "user_id", p.UserID, "error", err.Error())
		d.reg.SendToConn(connID, NewErrorMessage(CodeNotAuthorized, "identity rejected"))
		return
	}
	d.presence.ConnectionAdded(p.UserID, first)
}

func (d *Dispatcher) handleJoinRoom(connID, userID string, msg *Message) {
	var p RoomPayload
	if err := msg.decodePayload(&p); err != nil || p.RoomID == "" {
		d.reg.SendToConn(connID, NewErrorMessage(CodeInvalidPayload, "room_id required"))
		return
	}

	if !d.canAccess(userID, p.RoomID) {
		d.reg.SendToConn(connID, NewErrorMessage(CodeNotAuthorized, "no access to room"))
		return
	}
	d.rooms.Join(connID, p.RoomID)
}

func (d *Dispatcher) handleLeaveRoom(connID string, msg *Message) {
	var p RoomPayload
	if err := msg.decodePayload(&p); err != nil || p.RoomID == "" {
		return
	}
	d.rooms.Leave(connID, p.RoomID)
}

func (d *Dispatcher) handleSendMessage(connID, userID string, msg *Message) {
	var p SendMessagePayload
	if err := msg.decodePayload(&p); err != nil || p.RoomID == "" {
		d.reg.SendToConn(connID, NewErrorMessage(CodeInvalidPayload, "room_id required"))
		return
	}
	if !d.rooms.IsMember(connID, p.RoomID) {
		// Out-of-order with join; drop like any other stale event.
		log.Debug("realtime: message for unjoined room", "conn_id", connID, "room_id", p.RoomID)
		return
	}
	if d.msgs == nil {
		d.reg.SendToConn(connID, NewErrorMessage(CodeInvalidPayload, "messaging unavailable"))
		return
	}

	stored, err := d.msgs.SaveMessage(p.RoomID, userID, p.Body, p.AttachmentURL)
	if err != nil {
		log.Error("realtime: message persist failed", "room_id", p.RoomID, "error", err.Error())
		d.reg.SendToConn(connID, NewErrorMessage("persist_failed", "message not saved"))
		return
	}

	out := NewChatMessage(p.RoomID, stored.ID, userID, p.Body, p.AttachmentURL, stored.CreatedAt)
	d.rooms.Broadcast(p.RoomID, out, connID)
}

func (d *Dispatcher) handleTyping(connID, userID string, msg *Message, outEvent string) {
	var p RoomPayload
	if err := msg.decodePayload(&p); err != nil || p.RoomID == "" {
		return
	}
	if !d.rooms.IsMember(connID, p.RoomID) {
		return
	}
	d.rooms.Broadcast(p.RoomID, NewTypingMessage(outEvent, p.RoomID, userID), connID)
}

func (d *Dispatcher) handleCallUser(connID, userID string, msg *Message) {
	var p CallUserPayload
	if err := msg.decodePayload(&p); err != nil || p.CalleeID == "" {
		d.reg.SendToConn(connID, NewErrorMessage(CodeInvalidPayload, "callee_id required"))
		return
	}

	_, err := d.broker.Initiate(userID, p.CalleeID, p.RoomID, p.Offer)
	switch err {
	case nil:
	case ErrPeerOffline:
		d.reg.SendToConn(connID, NewCallFailedMessage("", CodePeerOffline))
	case ErrCallInProgress:
		// The losing initiator surfaces the existing call instead.
		d.reg.SendToConn(connID, NewCallFailedMessage("", CodeCallInProgress))
	default:
		log.Debug("realtime: call rejected", "conn_id", connID, "error", err.Error())
	}
}

func (d *Dispatcher) handleAcceptCall(userID string, msg *Message) {
	var p AcceptCallPayload
	if err := msg.decodePayload(&p); err != nil || p.CallID == "" {
		return
	}
	// Invalid-state accepts (lost race, already ended) are silent no-ops.
	if err := d.broker.Accept(userID, p.CallID, p.Answer); err != nil {
		log.Debug("realtime: accept ignored", "call_id", p.CallID, "user_id", userID)
	}
}

func (d *Dispatcher) handleRejectCall(userID string, msg *Message) {
	var p CallControlPayload
	if err := msg.decodePayload(&p); err != nil || p.CallID == "" {
		return
	}
	if err := d.broker.Reject(userID, p.CallID); err != nil {
		log.Debug("realtime: reject ignored", "call_id", p.CallID, "user_id", userID)
	}
}

func (d *Dispatcher) handleIceCandidate(userID string, msg *Message) {
	var p IceCandidatePayload
	if err := msg.decodePayload(&p); err != nil || p.CallID == "" {
		return
	}
	d.broker.RelayICE(userID, p.CallID, p.Candidate)
}

func (d *Dispatcher) handleEndCall(userID string, msg *Message) {
	var p CallControlPayload
	if err := msg.decodePayload(&p); err != nil || p.CallID == "" {
		return
	}
	if err := d.broker.End(userID, p.CallID, EndReason(p.Reason)); err != nil {
		log.Debug("realtime: end ignored", "call_id", p.CallID, "user_id", userID)
	}
}

func (d *Dispatcher) canAccess(userID, roomID string) bool {
	if d.auth == nil {
		return false
	}
	ok, err := d.auth.CanAccessRoom(userID, roomID)
	if err != nil {
		log.Warn("realtime: room authorization check failed", "user_id", userID, "room_id", roomID, "error", err.Error())
		return false
	}
	return ok
}
