// internal/realtime/service.go
package realtime

import (
	"time"
)

// Collaborators bundles the external interfaces the core consumes. All are
// backed by the persistent store; any may be nil (the matching feature
// degrades as documented on each interface).
type Collaborators struct {
	Authorizer RoomAuthorizer
	Messages   MessageStore
	Contacts   ContactResolver
	Presence   PresenceSink
	Calls      CallArchiver
}

// Service owns the realtime core: connection registry, presence tracker,
// room membership, call broker and the event dispatcher that fronts them.
// All state is in-process; a multi-instance deployment needs an external
// fan-out layer to route between nodes, which this service deliberately
// does not provide.
type Service struct {
	reg        *Registry
	presence   *Presence
	rooms      *Rooms
	broker     *Broker
	dispatcher *Dispatcher
	jwtSecret  string
}

// Stats describes the live state of the realtime core.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	ActiveCalls int `json:"active_calls"`
}

// NewService wires the realtime core. Stores are injected rather than
// reached through globals so tests can instantiate isolated instances.
func NewService(jwtSecret string, collab Collaborators) *Service {
	reg := NewRegistry()
	presence := NewPresence(reg, collab.Contacts, collab.Presence)
	rooms := NewRooms(reg)
	broker := NewBroker(reg, collab.Calls)
	return &Service{
		reg:        reg,
		presence:   presence,
		rooms:      rooms,
		broker:     broker,
		dispatcher: NewDispatcher(reg, presence, rooms, broker, collab.Authorizer, collab.Messages),
		jwtSecret:  jwtSecret,
	}
}

// Dispatcher exposes the event dispatcher for transports and tests.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// IsOnline reports derived presence for a user.
func (s *Service) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

// Stats returns current realtime statistics.
func (s *Service) Stats() Stats {
	return Stats{
		Connections: s.reg.ConnectionCount(),
		Rooms:       s.rooms.RoomCount(),
		ActiveCalls: s.broker.ActiveCalls(),
	}
}

// PublishMessage fans a message persisted through the REST API out to the
// room's live connections. senderConnID may be empty when the sender has no
// realtime connection.
func (s *Service) PublishMessage(roomID, messageID, senderID, body, attachmentURL string, createdAt time.Time) {
	msg := NewChatMessage(roomID, messageID, senderID, body, attachmentURL, createdAt)
	s.rooms.Broadcast(roomID, msg, "")
}
