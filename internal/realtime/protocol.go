// Package realtime implements the signaling and presence core: it tracks
// which users are online, scopes chat events to conversation rooms, and
// brokers WebRTC call setup (offer/answer/ICE exchange) between two users.
// Media never passes through this package; browsers connect directly once
// signaling completes.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the wire format for all realtime events, client-to-server and
// server-to-client. Event selects the payload shape; Payload is decoded into
// the matching typed struct below.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client events
const (
	EventIdentify     = "identify"
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventCallUser     = "call-user"
	EventAcceptCall   = "accept-call"
	EventRejectCall   = "reject-call"
	EventEndCall      = "end-call"
	EventIceCandidate = "ice-candidate" // both directions
)

// Server events
const (
	EventUserStatusChange  = "user-status-change"
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventIncomingCall      = "incoming-call"
	EventCallAccepted      = "call-accepted"
	EventCallRejected      = "call-rejected"
	EventCallEnded         = "call-ended"
	EventCallFailed        = "call-failed"
	EventError             = "error"
)

// IdentifyPayload binds a connection to a user. Must be the first event on a
// connection; every other event is rejected until identify succeeds.
type IdentifyPayload struct {
	UserID string `json:"user_id"`
}

// RoomPayload is used by join-room, leave-room, typing and stop-typing.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// SendMessagePayload carries a chat message into a room.
type SendMessagePayload struct {
	RoomID        string `json:"room_id"`
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// CallUserPayload initiates a call. Offer is the caller's SDP, passed through
// opaquely.
type CallUserPayload struct {
	CalleeID string          `json:"callee_id"`
	RoomID   string          `json:"room_id"`
	Offer    json.RawMessage `json:"offer"`
}

// AcceptCallPayload answers a ringing call with the callee's SDP.
type AcceptCallPayload struct {
	CallID string          `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

// CallControlPayload is used by reject-call and end-call.
type CallControlPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

// IceCandidatePayload relays an ICE candidate between call participants.
type IceCandidatePayload struct {
	CallID    string          `json:"call_id"`
	Candidate json.RawMessage `json:"candidate"`
}

// DecodeMessage parses JSON bytes into a Message.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("missing event field")
	}
	return &msg, nil
}

// Encode serializes a message to JSON bytes.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// decodePayload unmarshals the payload into the given typed struct.
func (m *Message) decodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("missing payload for %s", m.Event)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Event, err)
	}
	return nil
}

func newMessage(event string, payload any) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are built server-side from marshalable types; this only
		// trips on a programming error.
		panic(fmt.Sprintf("realtime: marshal %s payload: %v", event, err))
	}
	return &Message{Event: event, Payload: data}
}

// NewStatusChangeMessage announces a presence transition to a user's contacts.
func NewStatusChangeMessage(userID string, online bool) *Message {
	return newMessage(EventUserStatusChange, map[string]any{
		"user_id": userID,
		"online":  online,
	})
}

// NewChatMessage delivers a persisted chat message to room members.
func NewChatMessage(roomID, messageID, senderID, body, attachmentURL string, createdAt time.Time) *Message {
	return newMessage(EventNewMessage, map[string]any{
		"room_id":        roomID,
		"message_id":     messageID,
		"sender_id":      senderID,
		"body":           body,
		"attachment_url": attachmentURL,
		"created_at":     createdAt.UTC().Format(time.RFC3339),
	})
}

// NewTypingMessage relays a typing indicator to room members.
func NewTypingMessage(event, roomID, userID string) *Message {
	return newMessage(event, map[string]any{
		"room_id": roomID,
		"user_id": userID,
	})
}

// NewIncomingCallMessage rings the callee with the caller's offer.
func NewIncomingCallMessage(call *Call, offer json.RawMessage) *Message {
	return newMessage(EventIncomingCall, map[string]any{
		"call_id":   call.ID,
		"caller_id": call.CallerID,
		"room_id":   call.RoomID,
		"offer":     offer,
	})
}

// NewCallAcceptedMessage relays the callee's answer to the caller.
func NewCallAcceptedMessage(callID string, answer json.RawMessage) *Message {
	return newMessage(EventCallAccepted, map[string]any{
		"call_id": callID,
		"answer":  answer,
	})
}

// NewCallRejectedMessage tells the caller the callee declined.
func NewCallRejectedMessage(callID string) *Message {
	return newMessage(EventCallRejected, map[string]any{
		"call_id": callID,
	})
}

// NewIceCandidateMessage forwards an ICE candidate to the other participant.
func NewIceCandidateMessage(callID string, candidate json.RawMessage) *Message {
	return newMessage(EventIceCandidate, map[string]any{
		"call_id":   callID,
		"candidate": candidate,
	})
}

// NewCallEndedMessage tells the remaining participant the call is over.
func NewCallEndedMessage(callID string, reason EndReason) *Message {
	return newMessage(EventCallEnded, map[string]any{
		"call_id": callID,
		"reason":  string(reason),
	})
}

// NewCallFailedMessage tells the caller why a call could not be placed.
func NewCallFailedMessage(callID, reason string) *Message {
	return newMessage(EventCallFailed, map[string]any{
		"call_id": callID,
		"reason":  reason,
	})
}

// NewErrorMessage reports a request-level error back to the sender.
func NewErrorMessage(code, detail string) *Message {
	return newMessage(EventError, map[string]any{
		"code":    code,
		"message": detail,
	})
}
