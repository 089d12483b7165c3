package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/protocol"
)

const writeWait = 5 * time.Second

// Channel is the client side of the room connection: every message the
// local player can send. Network implements it over a websocket; tests fake
// it.
type Channel interface {
	SendPlayerUpdate(x, y float64, anim string, status *domain.StatusPatch) error
	JoinOffice(username string, office domain.ZoneName) error
	LeaveOffice(username string, office domain.ZoneName) error
	PushOfficeMessage(username, message string, office domain.ZoneName) error
	PushGlobalChatMessage(username, message string) error
	ConnectToOfficeVideoCall(office domain.ZoneName) error
	ConnectToProximityVideoCall(targets []domain.SessionID) error
	RemoveFromProximityCall(target domain.SessionID) error
	StoppedOfficeWebcam(office domain.ZoneName) error
	StoppedProximityWebcam(targets []domain.SessionID) error
	StoppedScreenSharing(office domain.ZoneName) error
	SendMediaSignal(to domain.SessionID, capability string, body json.RawMessage) error
}

// Handlers are the room events the owning layer reacts to beyond plain
// replication. Any field may be nil.
type Handlers struct {
	OnConnectToVideoCall   func(domain.SessionID)
	OnEndVideoCallWithUser func(domain.SessionID)
	OnStoppedScreenSharing func(domain.SessionID)
	OnUserJoinedOffice     func(protocol.OfficeNotice)
	OnPlayerLeftOffice     func(protocol.OfficeNotice)
	OnMediaSignal          func(from domain.SessionID, capability string, body json.RawMessage)
	OnError                func(string)
	OnClose                func(error)
}

// JoinOptions identifies the player to the room on the first frame.
type JoinOptions struct {
	Room       string
	Username   string
	Character  string
	IsMicOn    bool
	IsWebcamOn bool
}

// Network is the websocket room channel. Sends are serialized by a mutex;
// the read loop feeds the replica and the event handlers.
type Network struct {
	conn     *websocket.Conn
	replica  *Replica
	handlers Handlers

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects, sends the join frame and starts the read loop. The replica
// fills up as soon as the room answers with its snapshot.
func Dial(ctx context.Context, url string, opts JoinOptions, replica *Replica, handlers Handlers) (*Network, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	n := &Network{
		conn:     conn,
		replica:  replica,
		handlers: handlers,
		done:     make(chan struct{}),
	}
	join := protocol.JoinRoom{
		Type:       protocol.TypeJoinRoom,
		Room:       opts.Room,
		Username:   opts.Username,
		Character:  opts.Character,
		IsMicOn:    opts.IsMicOn,
		IsWebcamOn: opts.IsWebcamOn,
	}
	if err := n.write(join); err != nil {
		conn.Close()
		return nil, err
	}
	go n.readLoop()
	return n, nil
}

// Done closes when the read loop exits.
func (n *Network) Done() <-chan struct{} { return n.done }

func (n *Network) Close() error {
	var err error
	n.closeOnce.Do(func() {
		err = n.conn.Close()
	})
	return err
}

func (n *Network) write(v any) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	n.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return n.conn.WriteJSON(v)
}

func (n *Network) SendPlayerUpdate(x, y float64, anim string, status *domain.StatusPatch) error {
	return n.write(protocol.UpdatePlayer{Type: protocol.TypeUpdatePlayer, PlayerX: x, PlayerY: y, Anim: anim, Status: status})
}

func (n *Network) JoinOffice(username string, office domain.ZoneName) error {
	return n.write(protocol.OfficeAction{Type: protocol.TypeJoinOffice, Username: username, Office: office})
}

func (n *Network) LeaveOffice(username string, office domain.ZoneName) error {
	return n.write(protocol.OfficeAction{Type: protocol.TypeLeaveOffice, Username: username, Office: office})
}

func (n *Network) PushOfficeMessage(username, message string, office domain.ZoneName) error {
	return n.write(protocol.OfficeMessage{Type: protocol.TypePushOfficeMessage, Username: username, Message: message, OfficeName: office})
}

func (n *Network) PushGlobalChatMessage(username, message string) error {
	return n.write(protocol.GlobalChatMessage{Type: protocol.TypePushGlobalChatMessage, Username: username, Message: message})
}

func (n *Network) ConnectToOfficeVideoCall(office domain.ZoneName) error {
	return n.write(protocol.OfficeCall{Type: protocol.TypeConnectToOfficeVideoCall, Office: office})
}

func (n *Network) ConnectToProximityVideoCall(targets []domain.SessionID) error {
	return n.write(protocol.ProximityCall{Type: protocol.TypeConnectToProximityVideoCall, SessionIDs: targets})
}

func (n *Network) RemoveFromProximityCall(target domain.SessionID) error {
	return n.write(protocol.ProximityTarget{Type: protocol.TypeRemoveFromProximityCall, SessionID: target})
}

func (n *Network) StoppedOfficeWebcam(office domain.ZoneName) error {
	return n.write(protocol.OfficeCall{Type: protocol.TypeUserStoppedOfficeWebcam, Office: office})
}

func (n *Network) StoppedProximityWebcam(targets []domain.SessionID) error {
	return n.write(protocol.ProximityCall{Type: protocol.TypeUserStoppedProximityWebcam, SessionIDs: targets})
}

func (n *Network) StoppedScreenSharing(office domain.ZoneName) error {
	return n.write(protocol.OfficeCall{Type: protocol.TypeUserStoppedScreenSharing, Office: office})
}

func (n *Network) SendMediaSignal(to domain.SessionID, capability string, body json.RawMessage) error {
	return n.write(protocol.MediaSignal{Type: protocol.TypeMediaSignal, To: to, Capability: capability, Body: body})
}

func (n *Network) readLoop() {
	var loopErr error
	defer func() {
		n.Close()
		close(n.done)
		if n.handlers.OnClose != nil {
			n.handlers.OnClose(loopErr)
		}
	}()
	for {
		_, data, err := n.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				loopErr = err
			}
			return
		}
		n.dispatch(data)
	}
}

func (n *Network) dispatch(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		return
	}
	switch env.Type {
	case protocol.TypeRoomState:
		var p protocol.RoomState
		if n.decode(data, &p) {
			n.replica.applyRoomState(p.You, p.Players, p.Offices)
		}
	case protocol.TypePlayerAdded:
		var p protocol.PlayerEvent
		if n.decode(data, &p) {
			n.replica.applyPlayerAdded(p.Player)
		}
	case protocol.TypePlayerUpdated:
		var p protocol.PlayerEvent
		if n.decode(data, &p) {
			n.replica.applyPlayerUpdated(p.Player)
		}
	case protocol.TypePlayerRemoved:
		var p protocol.PlayerRemoved
		if n.decode(data, &p) {
			n.replica.applyPlayerRemoved(p.SessionID)
		}
	case protocol.TypeOfficeMemberAdded:
		var p protocol.OfficeMembership
		if n.decode(data, &p) {
			n.replica.applyOfficeMemberAdded(p.Office, p.SessionID, p.Username)
		}
	case protocol.TypeOfficeMemberRemoved:
		var p protocol.OfficeMembership
		if n.decode(data, &p) {
			n.replica.applyOfficeMemberRemoved(p.Office, p.SessionID)
		}
	case protocol.TypeGetGlobalChat:
		var p protocol.ChatHistory
		if n.decode(data, &p) {
			n.replica.setGlobalChat(p.Messages)
		}
	case protocol.TypeNewGlobalChatMessage:
		var p protocol.ChatEvent
		if n.decode(data, &p) {
			n.replica.appendGlobalChat(domain.ChatMessage{Username: p.Username, Message: p.Message, Kind: p.Kind})
		}
	case protocol.TypeGetOfficeChat:
		var p protocol.ChatHistory
		if n.decode(data, &p) {
			n.replica.setOfficeChat(p.Messages)
		}
	case protocol.TypeNewOfficeMessage:
		var p protocol.ChatEvent
		if n.decode(data, &p) {
			n.replica.appendOfficeChat(domain.ChatMessage{Username: p.Username, Message: p.Message, Kind: p.Kind})
		}
	case protocol.TypeUserJoinedOffice:
		var p protocol.OfficeNotice
		if n.decode(data, &p) {
			n.replica.appendOfficeChat(domain.ChatMessage{Username: p.Username, Message: p.Message, Kind: p.Kind})
			if n.handlers.OnUserJoinedOffice != nil {
				n.handlers.OnUserJoinedOffice(p)
			}
		}
	case protocol.TypePlayerLeftOffice:
		var p protocol.OfficeNotice
		if n.decode(data, &p) {
			n.replica.appendOfficeChat(domain.ChatMessage{Username: p.Username, Message: p.Message, Kind: p.Kind})
			if n.handlers.OnPlayerLeftOffice != nil {
				n.handlers.OnPlayerLeftOffice(p)
			}
		}
	case protocol.TypeConnectToVideoCall:
		var p protocol.CallEvent
		if n.decode(data, &p) && n.handlers.OnConnectToVideoCall != nil {
			n.handlers.OnConnectToVideoCall(p.SessionID)
		}
	case protocol.TypeEndVideoCallWithUser:
		var p protocol.CallEvent
		if n.decode(data, &p) && n.handlers.OnEndVideoCallWithUser != nil {
			n.handlers.OnEndVideoCallWithUser(p.SessionID)
		}
	case protocol.TypeUserStoppedScreenSharing:
		var p protocol.CallEvent
		if n.decode(data, &p) && n.handlers.OnStoppedScreenSharing != nil {
			n.handlers.OnStoppedScreenSharing(p.SessionID)
		}
	case protocol.TypeMediaSignal:
		var p protocol.MediaSignal
		if n.decode(data, &p) && n.handlers.OnMediaSignal != nil {
			n.handlers.OnMediaSignal(p.From, p.Capability, p.Body)
		}
	case protocol.TypeError:
		var p protocol.Error
		if n.decode(data, &p) {
			log.Warn().Str("module", "client").Str("error", p.Error).Msg("room error")
			if n.handlers.OnError != nil {
				n.handlers.OnError(p.Error)
			}
		}
	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("unhandled message type")
	}
}

func (n *Network) decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad payload")
		return false
	}
	return true
}
