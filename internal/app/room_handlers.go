package app

import (
	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/core"
	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/protocol"
)

// Join binds the connection and creates the player. Posted like every other
// mutation so it serializes with the rest of the room's traffic.
func (r *Room) Join(sid domain.SessionID, conn core.SignalConnection, p protocol.JoinRoom) bool {
	return r.Post(func() { r.handleJoin(sid, conn, p) })
}

func (r *Room) UpdatePlayer(sid domain.SessionID, p protocol.UpdatePlayer) bool {
	return r.Post(func() { r.handleUpdatePlayer(sid, p) })
}

func (r *Room) JoinOffice(sid domain.SessionID, p protocol.OfficeAction) bool {
	return r.Post(func() { r.handleJoinOffice(sid, p) })
}

func (r *Room) LeaveOffice(sid domain.SessionID, p protocol.OfficeAction) bool {
	return r.Post(func() { r.handleLeaveOffice(sid, p) })
}

func (r *Room) PushOfficeMessage(sid domain.SessionID, p protocol.OfficeMessage) bool {
	return r.Post(func() { r.handlePushOfficeMessage(sid, p) })
}

func (r *Room) PushGlobalChatMessage(sid domain.SessionID, p protocol.GlobalChatMessage) bool {
	return r.Post(func() { r.handlePushGlobalChatMessage(sid, p) })
}

func (r *Room) ConnectToOfficeVideoCall(sid domain.SessionID, office domain.ZoneName) bool {
	return r.Post(func() { r.fanOutToOffice(sid, office, protocol.TypeConnectToVideoCall) })
}

func (r *Room) ConnectToProximityVideoCall(sid domain.SessionID, targets []domain.SessionID) bool {
	return r.Post(func() { r.relayToEach(sid, targets, protocol.TypeConnectToVideoCall) })
}

func (r *Room) RemoveFromProximityCall(sid domain.SessionID, target domain.SessionID) bool {
	return r.Post(func() { r.relayToEach(sid, []domain.SessionID{target}, protocol.TypeEndVideoCallWithUser) })
}

func (r *Room) UserStoppedOfficeWebcam(sid domain.SessionID, office domain.ZoneName) bool {
	return r.Post(func() { r.fanOutToOffice(sid, office, protocol.TypeEndVideoCallWithUser) })
}

func (r *Room) UserStoppedProximityWebcam(sid domain.SessionID, targets []domain.SessionID) bool {
	return r.Post(func() { r.relayToEach(sid, targets, protocol.TypeEndVideoCallWithUser) })
}

func (r *Room) UserStoppedScreenSharing(sid domain.SessionID, office domain.ZoneName) bool {
	return r.Post(func() { r.fanOutToOffice(sid, office, protocol.TypeUserStoppedScreenSharing) })
}

func (r *Room) RelayMediaSignal(sid domain.SessionID, p protocol.MediaSignal) bool {
	return r.Post(func() { r.handleMediaSignal(sid, p) })
}

func (r *Room) Leave(sid domain.SessionID) bool {
	return r.Post(func() { r.handleLeave(sid) })
}

func (r *Room) handleJoin(sid domain.SessionID, conn core.SignalConnection, p protocol.JoinRoom) {
	r.countMessage(protocol.TypeJoinRoom)
	r.sessions[sid] = &session{conn: conn, username: p.Username}

	player, joinedMsg := r.store.Join(sid, p.Username, p.Character, p.IsMicOn, p.IsWebcamOn)
	r.playerCount.Store(int64(r.store.PlayerCount()))
	log.Info().Str("module", "app.room").Str("room", string(r.meta.Name)).Str("sid", string(sid)).Str("username", p.Username).Msg("player joined")

	// Full snapshot for the joiner, replication events for everyone else.
	r.send(sid, protocol.RoomState{
		Type:    protocol.TypeRoomState,
		You:     sid,
		Players: r.store.Players(),
		Offices: r.store.Memberships(),
	})
	r.broadcast(protocol.PlayerEvent{Type: protocol.TypePlayerAdded, Player: *player}, sid)

	r.broadcast(protocol.ChatEvent{
		Type:     protocol.TypeNewGlobalChatMessage,
		Username: joinedMsg.Username,
		Message:  joinedMsg.Message,
		Kind:     joinedMsg.Kind,
	}, sid)
	r.send(sid, protocol.ChatHistory{Type: protocol.TypeGetGlobalChat, Messages: r.store.GlobalChat()})
}

func (r *Room) handleUpdatePlayer(sid domain.SessionID, p protocol.UpdatePlayer) {
	r.countMessage(protocol.TypeUpdatePlayer)
	player, ok := r.store.UpdatePlayer(sid, p.PlayerX, p.PlayerY, p.Anim, p.Status)
	if !ok {
		return
	}
	r.broadcast(protocol.PlayerEvent{Type: protocol.TypePlayerUpdated, Player: *player}, sid)
}

func (r *Room) handleJoinOffice(sid domain.SessionID, p protocol.OfficeAction) {
	r.countMessage(protocol.TypeJoinOffice)
	msg, others, err := r.store.JoinZone(sid, p.Username, p.Office)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.room").Str("sid", string(sid)).Msg("join office")
		r.send(sid, protocol.Error{Type: protocol.TypeError, Error: "unknown office"})
		return
	}

	r.send(sid, protocol.ChatHistory{
		Type:     protocol.TypeGetOfficeChat,
		Office:   p.Office,
		Messages: r.store.ZoneChat(p.Office),
	})

	notice := protocol.OfficeNotice{
		Type:            protocol.TypeUserJoinedOffice,
		PlayerSessionID: sid,
		Username:        p.Username,
		Message:         msg.Message,
		Kind:            msg.Kind,
	}
	for _, other := range others {
		r.send(other, notice)
	}

	r.broadcast(protocol.OfficeMembership{
		Type:      protocol.TypeOfficeMemberAdded,
		Office:    p.Office,
		SessionID: sid,
		Username:  p.Username,
	}, sid)
}

func (r *Room) handleLeaveOffice(sid domain.SessionID, p protocol.OfficeAction) {
	r.countMessage(protocol.TypeLeaveOffice)
	r.leaveOffice(sid, p.Username, p.Office)
}

// leaveOffice is shared by the explicit LEAVE_OFFICE message and the
// room-leave path. Non-members fall through silently: a client whose media
// permission was never granted may leave an office it never fully joined.
func (r *Room) leaveOffice(sid domain.SessionID, username string, office domain.ZoneName) {
	msg, remaining, ok := r.store.LeaveZone(sid, username, office)
	if !ok {
		return
	}

	notice := protocol.OfficeNotice{
		Type:            protocol.TypePlayerLeftOffice,
		PlayerSessionID: sid,
		Username:        username,
		Message:         msg.Message,
		Kind:            msg.Kind,
	}
	for _, member := range remaining {
		r.send(member, notice)
	}

	r.broadcast(protocol.OfficeMembership{
		Type:      protocol.TypeOfficeMemberRemoved,
		Office:    office,
		SessionID: sid,
	}, sid)
}

func (r *Room) handlePushOfficeMessage(sid domain.SessionID, p protocol.OfficeMessage) {
	r.countMessage(protocol.TypePushOfficeMessage)
	if r.chat != nil && !r.chat.Allow(sid) {
		log.Warn().Str("module", "app.room").Str("sid", string(sid)).Msg("chat rate limit exceeded")
		return
	}
	msg, members, err := r.store.AppendZoneMessage(p.OfficeName, p.Username, p.Message)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.room").Str("sid", string(sid)).Msg("push office message")
		return
	}
	event := protocol.ChatEvent{
		Type:     protocol.TypeNewOfficeMessage,
		Username: msg.Username,
		Message:  msg.Message,
		Kind:     msg.Kind,
	}
	// Chat fan-out includes the sender: the office chat view renders from
	// server echoes only.
	for _, member := range members {
		r.send(member, event)
	}
}

func (r *Room) handlePushGlobalChatMessage(sid domain.SessionID, p protocol.GlobalChatMessage) {
	r.countMessage(protocol.TypePushGlobalChatMessage)
	if r.chat != nil && !r.chat.Allow(sid) {
		log.Warn().Str("module", "app.room").Str("sid", string(sid)).Msg("chat rate limit exceeded")
		return
	}
	msg := r.store.AppendGlobalMessage(p.Username, p.Message)
	r.broadcast(protocol.ChatEvent{
		Type:     protocol.TypeNewGlobalChatMessage,
		Username: msg.Username,
		Message:  msg.Message,
		Kind:     msg.Kind,
	}, "")
}

// fanOutToOffice sends a call event carrying the originator's session id to
// every other member of the office.
func (r *Room) fanOutToOffice(sid domain.SessionID, office domain.ZoneName, eventType string) {
	r.countMessage(eventType)
	for member := range r.store.ZoneMembers(office) {
		if member == sid {
			continue
		}
		r.send(member, protocol.CallEvent{Type: eventType, SessionID: sid})
	}
}

func (r *Room) relayToEach(sid domain.SessionID, targets []domain.SessionID, eventType string) {
	r.countMessage(eventType)
	for _, target := range targets {
		r.send(target, protocol.CallEvent{Type: eventType, SessionID: sid})
	}
}

func (r *Room) handleMediaSignal(sid domain.SessionID, p protocol.MediaSignal) {
	r.countMessage(protocol.TypeMediaSignal)
	p.From = sid
	r.send(p.To, p)
}

func (r *Room) handleLeave(sid domain.SessionID) {
	delete(r.sessions, sid)
	if r.chat != nil {
		r.chat.Forget(sid)
	}

	player, leftMsg, zoneName, ok := r.store.Leave(sid)
	r.playerCount.Store(int64(r.store.PlayerCount()))
	defer func() {
		if r.store.PlayerCount() == 0 && r.onEmpty != nil {
			r.onEmpty()
		}
	}()
	if !ok {
		return
	}
	log.Info().Str("module", "app.room").Str("room", string(r.meta.Name)).Str("sid", string(sid)).Msg("player left")

	r.broadcast(protocol.ChatEvent{
		Type:     protocol.TypeNewGlobalChatMessage,
		Username: leftMsg.Username,
		Message:  leftMsg.Message,
		Kind:     leftMsg.Kind,
	}, sid)
	r.broadcast(protocol.PlayerRemoved{Type: protocol.TypePlayerRemoved, SessionID: sid}, sid)

	if zoneName != "" {
		r.leaveOffice(sid, player.Username, zoneName)
	}
}
