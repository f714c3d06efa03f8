// internal/realtime/fakes_test.go
package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSender is an in-memory Sender so tests run without websockets.
type fakeSender struct {
	mu       sync.Mutex
	msgs     []*Message
	failSend bool
	closed   bool
}

func (f *fakeSender) Send(msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("write failed")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Event
	}
	return out
}

func (f *fakeSender) countEvent(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeSender) lastPayload(t *testing.T, event string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Event != event {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(f.msgs[i].Payload, &payload); err != nil {
			t.Fatalf("decode %s payload: %v", event, err)
		}
		return payload
	}
	t.Fatalf("no %s event received (got %v)", event, f.events())
	return nil
}

// allowAllRooms authorizes every user for every room.
type allowAllRooms struct{}

func (allowAllRooms) CanAccessRoom(userID, roomID string) (bool, error) { return true, nil }

// denyAllRooms refuses every join.
type denyAllRooms struct{}

func (denyAllRooms) CanAccessRoom(userID, roomID string) (bool, error) { return false, nil }

// memMessageStore assigns sequential ids and a fixed timestamp.
type memMessageStore struct {
	mu    sync.Mutex
	saved []savedMessage
}

type savedMessage struct {
	roomID, senderID, body string
}

func (s *memMessageStore) SaveMessage(roomID, senderID, body, attachmentURL string) (*StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedMessage{roomID, senderID, body})
	return &StoredMessage{
		ID:        "msg-1",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

// memContacts maps each user to a fixed contact list.
type memContacts struct {
	contacts map[string][]string
}

func (c *memContacts) ContactsOf(userID string) ([]string, error) {
	return c.contacts[userID], nil
}

// memSink records last-seen stamps.
type memSink struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	calls int
}

func (s *memSink) SetLastSeen(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	s.seen[userID] = at
	s.calls++
	return nil
}

// memArchiver records archived calls.
type memArchiver struct {
	mu    sync.Mutex
	calls []*Call
}

func (a *memArchiver) ArchiveCall(call *Call) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	return nil
}

func (a *memArchiver) last() *Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.calls) == 0 {
		return nil
	}
	return a.calls[len(a.calls)-1]
}

// encode builds a raw inbound event for dispatcher tests.
func encode(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := (&Message{Event: event, Payload: data}).Encode()
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return raw
}
