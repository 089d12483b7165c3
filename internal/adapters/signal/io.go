package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gatherly/office/internal/app"
	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	pingPeriod := ctl.Cfg.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid domain.SessionID, c *wsConn) {
	var room *app.Room
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		if room != nil {
			room.Leave(sid)
		}
		if ctl.Metrics != nil {
			ctl.Metrics.ConnectedSessions.Dec()
		}
		cancel()
		c.Close()
	}()

	// Flood guard: clients that exceed the message budget get dropped.
	limiter := rate.NewLimiter(rate.Limit(ctl.Cfg.MessageRate), ctl.Cfg.MessageBurst)

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			if !limiter.Allow() {
				log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("message rate exceeded, dropping connection")
				return
			}
			room = ctl.dispatch(sid, c, room, data)
		}
	}
}

// dispatch routes one inbound frame. The first frame must join a room; every
// later frame is posted to that room's mailbox.
func (ctl *Controller) dispatch(sid domain.SessionID, c *wsConn, room *app.Room, data []byte) *app.Room {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return room
	}

	if room == nil {
		if env.Type != protocol.TypeJoinRoom {
			ctl.sendError(c, "join a room first")
			return nil
		}
		return ctl.handleJoinRoom(sid, c, data)
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		ctl.sendError(c, "already in a room")
	case protocol.TypeUpdatePlayer:
		var p protocol.UpdatePlayer
		if ctl.decode(c, data, &p) {
			room.UpdatePlayer(sid, p)
		}
	case protocol.TypeJoinOffice:
		var p protocol.OfficeAction
		if ctl.decode(c, data, &p) {
			room.JoinOffice(sid, p)
		}
	case protocol.TypeLeaveOffice:
		var p protocol.OfficeAction
		if ctl.decode(c, data, &p) {
			room.LeaveOffice(sid, p)
		}
	case protocol.TypePushOfficeMessage:
		var p protocol.OfficeMessage
		if ctl.decode(c, data, &p) {
			room.PushOfficeMessage(sid, p)
		}
	case protocol.TypePushGlobalChatMessage:
		var p protocol.GlobalChatMessage
		if ctl.decode(c, data, &p) {
			room.PushGlobalChatMessage(sid, p)
		}
	case protocol.TypeConnectToOfficeVideoCall:
		var p protocol.OfficeCall
		if ctl.decode(c, data, &p) {
			room.ConnectToOfficeVideoCall(sid, p.Office)
		}
	case protocol.TypeConnectToProximityVideoCall:
		var p protocol.ProximityCall
		if ctl.decode(c, data, &p) {
			room.ConnectToProximityVideoCall(sid, p.SessionIDs)
		}
	case protocol.TypeRemoveFromProximityCall:
		var p protocol.ProximityTarget
		if ctl.decode(c, data, &p) {
			room.RemoveFromProximityCall(sid, p.SessionID)
		}
	case protocol.TypeUserStoppedOfficeWebcam:
		var p protocol.OfficeCall
		if ctl.decode(c, data, &p) {
			room.UserStoppedOfficeWebcam(sid, p.Office)
		}
	case protocol.TypeUserStoppedProximityWebcam:
		var p protocol.ProximityCall
		if ctl.decode(c, data, &p) {
			room.UserStoppedProximityWebcam(sid, p.SessionIDs)
		}
	case protocol.TypeUserStoppedScreenSharing:
		var p protocol.OfficeCall
		if ctl.decode(c, data, &p) {
			room.UserStoppedScreenSharing(sid, p.Office)
		}
	case protocol.TypeMediaSignal:
		var p protocol.MediaSignal
		if ctl.decode(c, data, &p) {
			room.RelayMediaSignal(sid, p)
		}
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
	return room
}

func (ctl *Controller) handleJoinRoom(sid domain.SessionID, c *wsConn, data []byte) *app.Room {
	var p protocol.JoinRoom
	if !ctl.decode(c, data, &p) {
		return nil
	}
	if p.Room == "" {
		ctl.sendError(c, "room name required")
		return nil
	}
	if err := domain.ValidUsername(p.Username); err != nil {
		ctl.sendError(c, err.Error())
		return nil
	}

	room := ctl.Rooms.GetOrCreate(domain.RoomName(p.Room))
	// A room whose last player just left may stop between lookup and Join;
	// the manager has already dropped it then, so looking up again creates a
	// fresh instance and the loop terminates.
	for !room.Join(sid, c, p) {
		room = ctl.Rooms.GetOrCreate(domain.RoomName(p.Room))
	}
	if ctl.Metrics != nil {
		ctl.Metrics.ActiveRooms.Set(float64(ctl.Rooms.Count()))
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Str("username", p.Username).Msg("join room")
	return room
}

func (ctl *Controller) decode(c *wsConn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad payload")
		ctl.sendError(c, "bad_payload")
		return false
	}
	return true
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	b, err := json.Marshal(protocol.Error{Type: protocol.TypeError, Error: msg})
	if err != nil {
		return
	}
	_ = c.TrySend(b)
}
