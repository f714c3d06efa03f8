// internal/realtime/registry.go
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markb/linglite/internal/log"
)

// Sender is the transport-facing half of a connection. The websocket Conn
// implements it; tests substitute in-memory fakes.
type Sender interface {
	// Send queues a message for delivery. A returned error means the
	// transport is no longer usable.
	Send(msg *Message) error

	// Close tears down the transport. The transport's read loop is expected
	// to call Dispatcher.Disconnect as it exits, which unwinds presence,
	// room membership and calls.
	Close()
}

// connection is one open realtime transport session. Owned exclusively by
// the Registry for its lifetime; never persisted.
type connection struct {
	id        string
	userID    string // empty until the client identifies
	expected  string // identity pinned at upgrade time; empty means unchecked
	sender    Sender
	createdAt time.Time
}

// Registry maps users to their live connections. A user may hold several
// connections at once (tabs, devices). The forward map (user -> connection
// set) and the inverse map (connection -> user) are mutated together under
// one lock so they can never disagree.
type Registry struct {
	mu     sync.Mutex
	byConn map[string]*connection
	byUser map[string]map[string]*connection

	clock func() time.Time
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*connection),
		byUser: make(map[string]map[string]*connection),
		clock:  time.Now,
	}
}

// Open allocates a new unregistered connection handle for the given
// transport. expectedUserID, when non-empty, pins the identity the
// connection may later claim (taken from the access token at upgrade).
func (r *Registry) Open(sender Sender, expectedUserID string) string {
	c := &connection{
		id:        uuid.New().String(),
		expected:  expectedUserID,
		sender:    sender,
		createdAt: r.clock(),
	}

	r.mu.Lock()
	r.byConn[c.id] = c
	r.mu.Unlock()

	return c.id
}

// Identify associates an open connection with a user identity. Idempotent
// per connection; re-identifying to a different user returns
// ErrInvalidState, so a connection's identity is fixed once set. The
// returned bool reports whether this was the user's first live connection
// (the offline-to-online boundary).
func (r *Registry) Identify(connID, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return false, ErrInvalidState
	}
	if c.expected != "" && c.expected != userID {
		return false, ErrNotAuthorized
	}
	if c.userID != "" {
		if c.userID == userID {
			return false, nil
		}
		return false, ErrInvalidState
	}

	c.userID = userID
	conns := r.byUser[userID]
	if conns == nil {
		conns = make(map[string]*connection)
		r.byUser[userID] = conns
	}
	conns[connID] = c

	return len(conns) == 1, nil
}

// Close removes the connection from both maps. It returns the owning user
// (empty if the connection never identified) and whether that user now has
// zero remaining connections, so callers can trigger presence and call
// cleanup. Safe to call on an unknown connID.
func (r *Registry) Close(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	if c.userID == "" {
		return "", false
	}
	if conns := r.byUser[c.userID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, c.userID)
			return c.userID, true
		}
	}
	return c.userID, false
}

// ConnectionsFor returns the ids of the user's live connections. Empty if
// the user is offline or unknown.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byUser[userID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// UserFor resolves the owning user of a connection. ok is false for
// unknown or unidentified connections.
func (r *Registry) UserFor(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok || c.userID == "" {
		return "", false
	}
	return c.userID, true
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionCount returns the number of open connections across all users,
// identified or not.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}

// SendToConn delivers a message to one connection. A failed write closes
// the transport; the connection is then cleaned up through the normal
// disconnect path.
func (r *Registry) SendToConn(connID string, msg *Message) bool {
	r.mu.Lock()
	c, ok := r.byConn[connID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := c.sender.Send(msg); err != nil {
		log.Debug("realtime: send failed, closing connection", "conn_id", connID, "error", err.Error())
		c.sender.Close()
		return false
	}
	return true
}

// SendToUser delivers a message to every live connection of a user and
// returns the number of successful writes. Failed connections are closed
// without affecting delivery to the rest.
func (r *Registry) SendToUser(userID string, msg *Message) int {
	r.mu.Lock()
	targets := make([]*connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if err := c.sender.Send(msg); err != nil {
			log.Debug("realtime: send failed, closing connection", "conn_id", c.id, "user_id", userID, "error", err.Error())
			c.sender.Close()
			continue
		}
		delivered++
	}
	return delivered
}
