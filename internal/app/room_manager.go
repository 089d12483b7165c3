package app

import (
	"sync"

	"github.com/gatherly/office/internal/domain"
)

// RoomInfo feeds the lobby listing.
type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	PlayerCount int             `json:"playerCount"`
	HasPassword bool            `json:"hasPassword"`
}

// RoomManager owns all room instances of one server. Rooms run independently
// and may execute concurrently with each other.
type RoomManager struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomName]*Room
	newOpts func() RoomOptions
}

func NewRoomManager(newOpts func() RoomOptions) *RoomManager {
	if newOpts == nil {
		newOpts = func() RoomOptions { return RoomOptions{} }
	}
	return &RoomManager{rooms: make(map[domain.RoomName]*Room), newOpts: newOpts}
}

func (m *RoomManager) GetOrCreate(name domain.RoomName) *Room {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room
	}
	opts := m.newOpts()
	room = NewRoom(name, withDisposal(m, name, &room, opts))
	m.rooms[name] = room
	return room
}

// withDisposal makes the room retire itself once its last player leaves.
// Disposal only removes the exact instance it was armed for, so a fresh room
// created under the same name after a join/leave race is never torn down by
// the old one's trigger.
func withDisposal(m *RoomManager, name domain.RoomName, room **Room, opts RoomOptions) RoomOptions {
	opts.OnEmpty = func() { m.dispose(name, *room) }
	return opts
}

func (m *RoomManager) dispose(name domain.RoomName, room *Room) {
	m.mu.Lock()
	if current, ok := m.rooms[name]; !ok || current != room {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, name)
	m.mu.Unlock()

	room.Stop()
	if room.metrics != nil {
		room.metrics.ActiveRooms.Set(float64(m.Count()))
	}
}

func (m *RoomManager) Get(name domain.RoomName) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, RoomInfo{
			Name:        name,
			PlayerCount: r.PlayerCount(),
			HasPassword: r.Meta().HasPassword,
		})
	}
	return out
}

func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *RoomManager) StopRoom(name domain.RoomName) {
	if room, ok := m.Get(name); ok {
		m.dispose(name, room)
	}
}
