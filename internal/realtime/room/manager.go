// Package room maintains the bidirectional membership index between rooms and
// connections.
package room

import (
	"sync"

	"formroom/internal/realtime/models"
)

// Manager owns the room membership state. Both indices (room to members,
// connection to rooms) mutate together under one lock so readers never observe
// a partial view.
type Manager struct {
	mu      sync.RWMutex
	members map[models.RoomKey]map[models.ConnectionID]struct{}
	joined  map[models.ConnectionID]map[models.RoomKey]struct{}
}

// NewManager creates an empty membership index.
func NewManager() *Manager {
	return &Manager{
		members: make(map[models.RoomKey]map[models.ConnectionID]struct{}),
		joined:  make(map[models.ConnectionID]map[models.RoomKey]struct{}),
	}
}

// Join adds the connection to the room, creating the room on first join.
// Joining twice is a no-op. It returns the full member list after the join and
// whether the membership actually changed.
func (m *Manager) Join(conn models.ConnectionID, room models.RoomKey) ([]models.ConnectionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.members[room]
	if !ok {
		set = make(map[models.ConnectionID]struct{})
		m.members[room] = set
	}
	_, already := set[conn]
	if !already {
		set[conn] = struct{}{}
		if m.joined[conn] == nil {
			m.joined[conn] = make(map[models.RoomKey]struct{})
		}
		m.joined[conn][room] = struct{}{}
	}

	return keysOf(set), !already
}

// Leave removes the connection from the room. Removing a non-member is a
// no-op. The room is dropped once its last member leaves.
func (m *Manager) Leave(conn models.ConnectionID, room models.RoomKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(conn, room)
}

func (m *Manager) leaveLocked(conn models.ConnectionID, room models.RoomKey) bool {
	set, ok := m.members[room]
	if !ok {
		return false
	}
	if _, member := set[conn]; !member {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(m.members, room)
	}
	if rooms := m.joined[conn]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.joined, conn)
		}
	}
	return true
}

// MembersOf returns the current members of a room.
func (m *Manager) MembersOf(room models.RoomKey) []models.ConnectionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return keysOf(m.members[room])
}

// RoomsOf returns every room the connection has joined.
func (m *Manager) RoomsOf(conn models.ConnectionID) []models.RoomKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := m.joined[conn]
	out := make([]models.RoomKey, 0, len(rooms))
	for r := range rooms {
		out = append(out, r)
	}
	return out
}

// RemoveConnection evicts the connection from every room it belonged to and
// returns those rooms so the caller can announce the departure.
func (m *Manager) RemoveConnection(conn models.ConnectionID) []models.RoomKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := m.joined[conn]
	out := make([]models.RoomKey, 0, len(rooms))
	for r := range rooms {
		out = append(out, r)
	}
	for _, r := range out {
		m.leaveLocked(conn, r)
	}
	return out
}

// RoomCount returns the number of rooms with at least one member.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

func keysOf(set map[models.ConnectionID]struct{}) []models.ConnectionID {
	out := make([]models.ConnectionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
