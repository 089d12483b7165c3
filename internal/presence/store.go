// Package presence holds the authoritative per-room state: the player table,
// zone membership rosters with their chat logs, and the global chat. A Store
// is owned by a single room actor and mutated run-to-completion per message,
// so it carries no locking of its own.
package presence

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/zone"
)

type zoneState struct {
	label   string
	members map[domain.SessionID]string
	chat    *ChatLog
}

// Config fixes the spawn point and the chat retention policy for one store.
type Config struct {
	SpawnX  float64
	SpawnY  float64
	ChatCap int
}

func DefaultConfig() Config {
	return Config{SpawnX: 550, SpawnY: 150}
}

type Store struct {
	cfg        Config
	players    map[domain.SessionID]*domain.Player
	zones      map[domain.ZoneName]*zoneState
	globalChat *ChatLog
}

func NewStore(zones *zone.Map, cfg Config) *Store {
	s := &Store{
		cfg:        cfg,
		players:    make(map[domain.SessionID]*domain.Player),
		zones:      make(map[domain.ZoneName]*zoneState),
		globalChat: NewChatLog(cfg.ChatCap),
	}
	for _, z := range zones.Zones() {
		s.zones[z.Name] = &zoneState{
			label:   z.Label,
			members: make(map[domain.SessionID]string),
			chat:    NewChatLog(cfg.ChatCap),
		}
	}
	return s
}

// Join creates the player record at the spawn point with the client-declared
// flags and appends the JOINED entry to the global chat. Username uniqueness
// is deliberately not enforced.
func (s *Store) Join(sid domain.SessionID, username, character string, isMicOn, isWebcamOn bool) (*domain.Player, domain.ChatMessage) {
	p := &domain.Player{
		SessionID:  sid,
		X:          s.cfg.SpawnX,
		Y:          s.cfg.SpawnY,
		Anim:       character + "_down_idle",
		Username:   username,
		IsMicOn:    isMicOn,
		IsWebcamOn: isWebcamOn,
	}
	s.players[sid] = p

	msg := domain.ChatMessage{
		Username: username,
		Message:  "Just joined the lobby!",
		Kind:     domain.MessageJoined,
	}
	s.globalChat.Append(msg)
	return p, msg
}

// UpdatePlayer overwrites position and animation unconditionally and applies
// only the status fields present in the patch. Unknown sessions are ignored.
func (s *Store) UpdatePlayer(sid domain.SessionID, x, y float64, anim string, status *domain.StatusPatch) (*domain.Player, bool) {
	p, ok := s.players[sid]
	if !ok {
		return nil, false
	}
	p.X = x
	p.Y = y
	p.Anim = anim
	if status != nil {
		if status.IsMicOn != nil {
			p.IsMicOn = *status.IsMicOn
		}
		if status.IsWebcamOn != nil {
			p.IsWebcamOn = *status.IsWebcamOn
		}
		if status.IsDisconnected != nil {
			p.IsDisconnected = *status.IsDisconnected
		}
	}
	return p, true
}

// JoinZone adds the session to the zone roster (idempotent) and appends the
// JOINED entry to that zone's chat. It returns the appended message and the
// session ids of the other current members.
func (s *Store) JoinZone(sid domain.SessionID, username string, name domain.ZoneName) (domain.ChatMessage, []domain.SessionID, error) {
	z, ok := s.zones[name]
	if !ok {
		return domain.ChatMessage{}, nil, fmt.Errorf("unknown zone %q", name)
	}
	z.members[sid] = username

	msg := domain.ChatMessage{
		Username: username,
		Message:  "Just joined " + z.label + " lobby",
		Kind:     domain.MessageJoined,
	}
	z.chat.Append(msg)
	return msg, s.otherMembers(z, sid), nil
}

// LeaveZone is guarded: leaving a zone the session never joined is an
// expected no-op, not an error. The media-permission race makes this path
// reachable for clients that never fully joined.
func (s *Store) LeaveZone(sid domain.SessionID, username string, name domain.ZoneName) (domain.ChatMessage, []domain.SessionID, bool) {
	z, ok := s.zones[name]
	if !ok {
		return domain.ChatMessage{}, nil, false
	}
	if _, member := z.members[sid]; !member {
		return domain.ChatMessage{}, nil, false
	}
	delete(z.members, sid)

	msg := domain.ChatMessage{
		Username: username,
		Message:  "Left " + z.label + " lobby",
		Kind:     domain.MessageLeft,
	}
	z.chat.Append(msg)
	return msg, s.otherMembers(z, sid), true
}

// Leave removes the player and appends the LEFT entry to the global chat.
// The zone the player belonged to, if any, is reported so the caller can run
// the zone-leave notifications as well.
func (s *Store) Leave(sid domain.SessionID) (*domain.Player, domain.ChatMessage, domain.ZoneName, bool) {
	p, ok := s.players[sid]
	if !ok {
		return nil, domain.ChatMessage{}, "", false
	}
	delete(s.players, sid)

	msg := domain.ChatMessage{
		Username: p.Username,
		Message:  "Left the lobby!",
		Kind:     domain.MessageLeft,
	}
	s.globalChat.Append(msg)

	name, _ := s.ZoneOf(sid)
	log.Debug().Str("module", "presence").Str("sid", string(sid)).Str("zone", string(name)).Msg("player left")
	return p, msg, name, true
}

// AppendZoneMessage appends a REGULAR entry to the zone chat and returns the
// full current roster (sender included) for fan-out.
func (s *Store) AppendZoneMessage(name domain.ZoneName, username, text string) (domain.ChatMessage, []domain.SessionID, error) {
	z, ok := s.zones[name]
	if !ok {
		return domain.ChatMessage{}, nil, fmt.Errorf("unknown zone %q", name)
	}
	msg := domain.ChatMessage{Username: username, Message: text, Kind: domain.MessageRegular}
	z.chat.Append(msg)
	return msg, s.otherMembers(z, ""), nil
}

func (s *Store) AppendGlobalMessage(username, text string) domain.ChatMessage {
	msg := domain.ChatMessage{Username: username, Message: text, Kind: domain.MessageRegular}
	s.globalChat.Append(msg)
	return msg
}

func (s *Store) Player(sid domain.SessionID) (*domain.Player, bool) {
	p, ok := s.players[sid]
	return p, ok
}

func (s *Store) Players() []domain.Player {
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

func (s *Store) PlayerCount() int { return len(s.players) }

// ZoneOf reports which zone the session currently belongs to. A session is a
// member of at most one zone at a time.
func (s *Store) ZoneOf(sid domain.SessionID) (domain.ZoneName, bool) {
	for name, z := range s.zones {
		if _, ok := z.members[sid]; ok {
			return name, true
		}
	}
	return "", false
}

// ZoneMembers returns the roster of one zone as sid → username.
func (s *Store) ZoneMembers(name domain.ZoneName) map[domain.SessionID]string {
	z, ok := s.zones[name]
	if !ok {
		return nil
	}
	out := make(map[domain.SessionID]string, len(z.members))
	for sid, username := range z.members {
		out[sid] = username
	}
	return out
}

func (s *Store) ZoneChat(name domain.ZoneName) []domain.ChatMessage {
	z, ok := s.zones[name]
	if !ok {
		return nil
	}
	return z.chat.Messages()
}

func (s *Store) ZoneChatLen(name domain.ZoneName) int {
	z, ok := s.zones[name]
	if !ok {
		return 0
	}
	return z.chat.Len()
}

func (s *Store) GlobalChat() []domain.ChatMessage { return s.globalChat.Messages() }

func (s *Store) GlobalChatLen() int { return s.globalChat.Len() }

// Memberships snapshots every zone roster, for the joiner's initial state.
func (s *Store) Memberships() map[domain.ZoneName]map[domain.SessionID]string {
	out := make(map[domain.ZoneName]map[domain.SessionID]string, len(s.zones))
	for name := range s.zones {
		out[name] = s.ZoneMembers(name)
	}
	return out
}

func (s *Store) otherMembers(z *zoneState, except domain.SessionID) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(z.members))
	for sid := range z.members {
		if sid == except {
			continue
		}
		out = append(out, sid)
	}
	return out
}
