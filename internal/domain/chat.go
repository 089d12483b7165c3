package domain

// MessageKind tags a chat entry with how it was produced.
type MessageKind string

const (
	MessageJoined  MessageKind = "PLAYER_JOINED"
	MessageLeft    MessageKind = "PLAYER_LEFT"
	MessageRegular MessageKind = "REGULAR_MESSAGE"
)

// ChatMessage is immutable once appended to a log.
type ChatMessage struct {
	Username string      `json:"username"`
	Message  string      `json:"message"`
	Kind     MessageKind `json:"type"`
}
