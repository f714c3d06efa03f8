// internal/realtime/rooms.go
package realtime

import "sync"

// Rooms tracks which connections are joined to which conversation channel,
// scoping chat-event delivery. A connection may belong to any number of
// rooms; all memberships are dropped when the connection closes.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // roomID -> set of connIDs
	byConn  map[string]map[string]struct{} // connID -> set of roomIDs

	reg *Registry
}

// NewRooms creates an empty room membership table.
func NewRooms(reg *Registry) *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]map[string]struct{}),
		reg:     reg,
	}
}

// Join adds the connection to the room. No-op if already joined.
// Authorization is the caller's responsibility; the dispatcher consults the
// room authorizer before calling this.
func (rm *Rooms) Join(connID, roomID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.members[roomID] == nil {
		rm.members[roomID] = make(map[string]struct{})
	}
	rm.members[roomID][connID] = struct{}{}

	if rm.byConn[connID] == nil {
		rm.byConn[connID] = make(map[string]struct{})
	}
	rm.byConn[connID][roomID] = struct{}{}
}

// Leave removes the connection from the room. No-op if not joined.
func (rm *Rooms) Leave(connID, roomID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.leaveLocked(connID, roomID)
}

// LeaveAll removes the connection from every room it had joined. Called on
// disconnect.
func (rm *Rooms) LeaveAll(connID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for roomID := range rm.byConn[connID] {
		rm.leaveLocked(connID, roomID)
	}
}

func (rm *Rooms) leaveLocked(connID, roomID string) {
	if conns := rm.members[roomID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(rm.members, roomID)
		}
	}
	if rooms := rm.byConn[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(rm.byConn, connID)
		}
	}
}

// IsMember reports whether the connection is currently joined to the room.
func (rm *Rooms) IsMember(connID, roomID string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.members[roomID][connID]
	return ok
}

// MemberCount returns the number of connections joined to the room.
func (rm *Rooms) MemberCount(roomID string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members[roomID])
}

// RoomCount returns the number of rooms with at least one member.
func (rm *Rooms) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// Broadcast delivers an event to every live connection in the room except
// excludeConnID (pass "" to reach everyone). Delivery is best-effort: a
// failed write closes that connection only, and the fan-out to the
// remaining members proceeds.
func (rm *Rooms) Broadcast(roomID string, msg *Message, excludeConnID string) {
	rm.mu.RLock()
	targets := make([]string, 0, len(rm.members[roomID]))
	for connID := range rm.members[roomID] {
		if connID == excludeConnID {
			continue
		}
		targets = append(targets, connID)
	}
	rm.mu.RUnlock()

	for _, connID := range targets {
		rm.reg.SendToConn(connID, msg)
	}
}
