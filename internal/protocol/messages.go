// Package protocol defines the JSON envelope and payloads exchanged between
// a room and its clients. Every message carries a "type" discriminator.
package protocol

import (
	"encoding/json"

	"github.com/gatherly/office/internal/domain"
)

// Client → server.
const (
	TypeJoinRoom                    = "JOIN_ROOM"
	TypeUpdatePlayer                = "UPDATE_PLAYER"
	TypeJoinOffice                  = "JOIN_OFFICE"
	TypeLeaveOffice                 = "LEAVE_OFFICE"
	TypePushOfficeMessage           = "PUSH_OFFICE_MESSAGE"
	TypePushGlobalChatMessage       = "PUSH_GLOBAL_CHAT_MESSAGE"
	TypeConnectToOfficeVideoCall    = "CONNECT_TO_OFFICE_VIDEO_CALL"
	TypeConnectToProximityVideoCall = "CONNECT_TO_PROXIMITY_VIDEO_CALL"
	TypeRemoveFromProximityCall     = "REMOVE_FROM_PROXIMITY_CALL"
	TypeUserStoppedOfficeWebcam     = "USER_STOPPED_OFFICE_WEBCAM"
	TypeUserStoppedProximityWebcam  = "USER_STOPPED_PROXIMITY_WEBCAM"
	TypeUserStoppedScreenSharing    = "USER_STOPPED_SCREEN_SHARING"
	TypeMediaSignal                 = "MEDIA_SIGNAL"
)

// Server → client.
const (
	TypeRoomState            = "ROOM_STATE"
	TypePlayerAdded          = "PLAYER_ADDED"
	TypePlayerUpdated        = "PLAYER_UPDATED"
	TypePlayerRemoved        = "PLAYER_REMOVED"
	TypeGetGlobalChat        = "GET_GLOBAL_CHAT"
	TypeNewGlobalChatMessage = "NEW_GLOBAL_CHAT_MESSAGE"
	TypeGetOfficeChat        = "GET_OFFICE_CHAT"
	TypeNewOfficeMessage     = "NEW_OFFICE_MESSAGE"
	TypeUserJoinedOffice     = "USER_JOINED_OFFICE"
	TypePlayerLeftOffice     = "PLAYER_LEFT_OFFICE"
	TypeOfficeMemberAdded    = "OFFICE_MEMBER_ADDED"
	TypeOfficeMemberRemoved  = "OFFICE_MEMBER_REMOVED"
	TypeConnectToVideoCall   = "CONNECT_TO_VIDEO_CALL"
	TypeEndVideoCallWithUser = "END_VIDEO_CALL_WITH_USER"
	TypeError                = "ERROR"
)

// Envelope is the minimal decode of any inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	Type       string `json:"type"`
	Room       string `json:"room"`
	Username   string `json:"username"`
	Character  string `json:"character"`
	IsMicOn    bool   `json:"isMicOn"`
	IsWebcamOn bool   `json:"isWebcamOn"`
}

type UpdatePlayer struct {
	Type    string              `json:"type"`
	PlayerX float64             `json:"playerX"`
	PlayerY float64             `json:"playerY"`
	Anim    string              `json:"anim"`
	Status  *domain.StatusPatch `json:"status,omitempty"`
}

type OfficeAction struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Office   domain.ZoneName `json:"office"`
}

type OfficeMessage struct {
	Type       string          `json:"type"`
	Username   string          `json:"username"`
	Message    string          `json:"message"`
	OfficeName domain.ZoneName `json:"officeName"`
}

type GlobalChatMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type OfficeCall struct {
	Type   string          `json:"type"`
	Office domain.ZoneName `json:"office"`
}

type ProximityCall struct {
	Type       string             `json:"type"`
	SessionIDs []domain.SessionID `json:"sessionIds"`
}

type ProximityTarget struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
}

// MediaSignal is relayed verbatim between two clients; the room only routes
// it. From is filled in by the server.
type MediaSignal struct {
	Type       string           `json:"type"`
	To         domain.SessionID `json:"to"`
	From       domain.SessionID `json:"from,omitempty"`
	Capability string           `json:"capability"`
	Body       json.RawMessage  `json:"body"`
}

type RoomState struct {
	Type    string                                           `json:"type"`
	You     domain.SessionID                                 `json:"you"`
	Players []domain.Player                                  `json:"players"`
	Offices map[domain.ZoneName]map[domain.SessionID]string `json:"offices"`
}

type PlayerEvent struct {
	Type   string        `json:"type"`
	Player domain.Player `json:"player"`
}

type PlayerRemoved struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
}

type ChatHistory struct {
	Type     string               `json:"type"`
	Office   domain.ZoneName      `json:"office,omitempty"`
	Messages []domain.ChatMessage `json:"messages"`
}

type ChatEvent struct {
	Type     string             `json:"type"`
	Username string             `json:"username"`
	Message  string             `json:"message"`
	Kind     domain.MessageKind `json:"kind"`
}

// OfficeNotice is the targeted USER_JOINED_OFFICE / PLAYER_LEFT_OFFICE
// notification sent to the other members of the affected office.
type OfficeNotice struct {
	Type            string             `json:"type"`
	PlayerSessionID domain.SessionID   `json:"playerSessionId"`
	Username        string             `json:"username"`
	Message         string             `json:"message"`
	Kind            domain.MessageKind `json:"kind"`
}

type OfficeMembership struct {
	Type      string           `json:"type"`
	Office    domain.ZoneName  `json:"office"`
	SessionID domain.SessionID `json:"sessionId"`
	Username  string           `json:"username,omitempty"`
}

// CallEvent addresses CONNECT_TO_VIDEO_CALL, END_VIDEO_CALL_WITH_USER and the
// server→client USER_STOPPED_SCREEN_SHARING: the payload is the originating
// session id.
type CallEvent struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
