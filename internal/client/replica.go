// Package client is the room-side counterpart of the signal adapter: a
// websocket channel, a replica of the room's replicated state and the local
// player's tick loop.
package client

import (
	"strings"
	"sync"

	"github.com/gatherly/office/internal/client/media"
	"github.com/gatherly/office/internal/domain"
)

// Replica mirrors the room's replicated tables: the player map, per-office
// membership and the two chat views. Updated by the channel's read loop,
// read by the tick loop and the render layer.
type Replica struct {
	mu      sync.RWMutex
	you     domain.SessionID
	players map[domain.SessionID]domain.Player
	offices map[domain.ZoneName]map[domain.SessionID]string

	// names is room-lifetime: entries survive office exits and are only
	// dropped when the player leaves the room, so media feeds can always
	// resolve a display name.
	names    map[domain.SessionID]string
	byPeerID map[string]domain.SessionID

	globalChat []domain.ChatMessage
	officeChat []domain.ChatMessage

	onAdd    func(domain.Player)
	onChange func(domain.Player)
	onRemove func(domain.SessionID)
}

func NewReplica() *Replica {
	return &Replica{
		players:  make(map[domain.SessionID]domain.Player),
		offices:  make(map[domain.ZoneName]map[domain.SessionID]string),
		names:    make(map[domain.SessionID]string),
		byPeerID: make(map[string]domain.SessionID),
	}
}

// OnPlayerAdded registers the hook fired for every replicated player add,
// including the initial snapshot. Register before dialing.
func (r *Replica) OnPlayerAdded(f func(domain.Player)) { r.onAdd = f }

func (r *Replica) OnPlayerChanged(f func(domain.Player)) { r.onChange = f }

func (r *Replica) OnPlayerRemoved(f func(domain.SessionID)) { r.onRemove = f }

func (r *Replica) You() domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.you
}

func (r *Replica) Player(sid domain.SessionID) (domain.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[sid]
	return p, ok
}

// Others snapshots every replicated player except the local one.
func (r *Replica) Others() []domain.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Player, 0, len(r.players))
	for sid, p := range r.players {
		if sid == r.you {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Replica) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// OfficeMembers snapshots the session ids currently in one office.
func (r *Replica) OfficeMembers(office domain.ZoneName) []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.offices[office]
	out := make([]domain.SessionID, 0, len(members))
	for sid := range members {
		out = append(out, sid)
	}
	return out
}

// Username resolves a display name from the room-lifetime table. Returns ""
// for unknown ids.
func (r *Replica) Username(sid domain.SessionID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[sid]
}

// DisplayName resolves a sanitized peer id (either capability) to a display
// name. Satisfies media.NameResolver.
func (r *Replica) DisplayName(peerID string) string {
	base := strings.TrimSuffix(peerID, "-ss")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sid, ok := r.byPeerID[base]; ok {
		return r.names[sid]
	}
	return ""
}

// SessionForPeerID is the reverse of the webcam id sanitization.
func (r *Replica) SessionForPeerID(peerID string) (domain.SessionID, bool) {
	base := strings.TrimSuffix(peerID, "-ss")
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byPeerID[base]
	return sid, ok
}

func (r *Replica) GlobalChat() []domain.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ChatMessage{}, r.globalChat...)
}

func (r *Replica) OfficeChat() []domain.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ChatMessage{}, r.officeChat...)
}

func (r *Replica) applyRoomState(you domain.SessionID, players []domain.Player, offices map[domain.ZoneName]map[domain.SessionID]string) {
	r.mu.Lock()
	r.you = you
	added := make([]domain.Player, 0, len(players))
	for _, p := range players {
		r.players[p.SessionID] = p
		r.index(p)
		if p.SessionID != you {
			added = append(added, p)
		}
	}
	for office, members := range offices {
		table := make(map[domain.SessionID]string, len(members))
		for sid, name := range members {
			table[sid] = name
		}
		r.offices[office] = table
	}
	onAdd := r.onAdd
	r.mu.Unlock()
	if onAdd != nil {
		for _, p := range added {
			onAdd(p)
		}
	}
}

func (r *Replica) applyPlayerAdded(p domain.Player) {
	r.mu.Lock()
	r.players[p.SessionID] = p
	r.index(p)
	onAdd := r.onAdd
	r.mu.Unlock()
	if onAdd != nil && p.SessionID != r.You() {
		onAdd(p)
	}
}

func (r *Replica) applyPlayerUpdated(p domain.Player) {
	r.mu.Lock()
	r.players[p.SessionID] = p
	r.index(p)
	onChange := r.onChange
	r.mu.Unlock()
	if onChange != nil {
		onChange(p)
	}
}

func (r *Replica) applyPlayerRemoved(sid domain.SessionID) {
	r.mu.Lock()
	delete(r.players, sid)
	delete(r.names, sid)
	delete(r.byPeerID, media.Sanitize(sid, media.Webcam))
	for _, members := range r.offices {
		delete(members, sid)
	}
	onRemove := r.onRemove
	r.mu.Unlock()
	if onRemove != nil {
		onRemove(sid)
	}
}

func (r *Replica) applyOfficeMemberAdded(office domain.ZoneName, sid domain.SessionID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.offices[office]
	if !ok {
		members = make(map[domain.SessionID]string)
		r.offices[office] = members
	}
	members[sid] = username
}

func (r *Replica) applyOfficeMemberRemoved(office domain.ZoneName, sid domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.offices[office], sid)
}

func (r *Replica) setGlobalChat(msgs []domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalChat = append([]domain.ChatMessage{}, msgs...)
}

func (r *Replica) appendGlobalChat(m domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalChat = append(r.globalChat, m)
}

func (r *Replica) setOfficeChat(msgs []domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.officeChat = append([]domain.ChatMessage{}, msgs...)
}

func (r *Replica) appendOfficeChat(m domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.officeChat = append(r.officeChat, m)
}

// clearOfficeChat resets the office chat view on zone exit. The room keeps
// the log; only the local view is dropped.
func (r *Replica) clearOfficeChat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.officeChat = nil
}

// index must be called with mu held.
func (r *Replica) index(p domain.Player) {
	r.names[p.SessionID] = p.Username
	r.byPeerID[media.Sanitize(p.SessionID, media.Webcam)] = p.SessionID
}
