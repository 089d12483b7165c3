// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// SessionID identifies one live client connection to a room.
type SessionID string

// ZoneName identifies one of the fixed office zones of a room's map.
type ZoneName string

// Player is the authoritative per-session record owned by the room's
// presence store. Position and animation are client-reported and accepted
// as-is: the store trusts the owning client and performs no movement or
// bounds validation.
type Player struct {
	SessionID      SessionID `json:"sessionId"`
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	Anim           string    `json:"anim"`
	Username       string    `json:"username"`
	IsMicOn        bool      `json:"isMicOn"`
	IsWebcamOn     bool      `json:"isWebcamOn"`
	IsDisconnected bool      `json:"isDisconnected"`
}

// StatusPatch carries the optional media-status fields of an UPDATE_PLAYER
// message. Only non-nil fields are applied.
type StatusPatch struct {
	IsMicOn        *bool `json:"isMicOn,omitempty"`
	IsWebcamOn     *bool `json:"isWebcamOn,omitempty"`
	IsDisconnected *bool `json:"isDisconnected,omitempty"`
}

func ValidUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
