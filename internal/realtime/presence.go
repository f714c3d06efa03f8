// internal/realtime/presence.go
package realtime

import (
	"time"

	"github.com/markb/linglite/internal/log"
)

// ContactResolver lists the users who should learn about a presence
// transition (friends, open chat peers). Backed by the persistent store;
// this core only emits the events.
type ContactResolver interface {
	ContactsOf(userID string) ([]string, error)
}

// PresenceSink receives the last-seen stamp when a user drops offline.
// Backed by the persistent store; a nil sink disables last-seen tracking.
type PresenceSink interface {
	SetLastSeen(userID string, at time.Time) error
}

// Presence derives online/offline state from the connection registry and
// fans out transitions. State flips only on the 0->1 and 1->0 connection
// count boundaries; closing one of several tabs is not a transition.
type Presence struct {
	reg      *Registry
	contacts ContactResolver
	sink     PresenceSink
	clock    func() time.Time
}

// NewPresence creates a presence tracker. contacts and sink may be nil.
func NewPresence(reg *Registry, contacts ContactResolver, sink PresenceSink) *Presence {
	return &Presence{reg: reg, contacts: contacts, sink: sink, clock: time.Now}
}

// IsOnline reports derived presence: true iff the user has at least one
// live connection.
func (p *Presence) IsOnline(userID string) bool {
	return p.reg.IsOnline(userID)
}

// ConnectionAdded handles a new identified connection. first is the
// registry's report of whether this is the user's only connection; only
// then is an online event emitted.
func (p *Presence) ConnectionAdded(userID string, first bool) {
	if !first {
		return
	}
	p.announce(userID, true)
}

// ConnectionRemoved handles a closed connection. last is the registry's
// report of whether the user has no connections left; only then is an
// offline event emitted and last-seen stamped.
func (p *Presence) ConnectionRemoved(userID string, last bool) {
	if !last {
		return
	}
	if p.sink != nil {
		if err := p.sink.SetLastSeen(userID, p.clock()); err != nil {
			log.Warn("realtime: last-seen update failed", "user_id", userID, "error", err.Error())
		}
	}
	p.announce(userID, false)
}

// announce emits user-status-change to every online contact of the user.
func (p *Presence) announce(userID string, online bool) {
	if p.contacts == nil {
		return
	}
	contacts, err := p.contacts.ContactsOf(userID)
	if err != nil {
		log.Warn("realtime: contact lookup failed", "user_id", userID, "error", err.Error())
		return
	}

	msg := NewStatusChangeMessage(userID, online)
	for _, contact := range contacts {
		p.reg.SendToUser(contact, msg)
	}
}
