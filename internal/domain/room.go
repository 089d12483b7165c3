package domain

type RoomName string

// Room is the identity and lobby metadata of one shared space instance.
// Password checking itself happens outside the core; HasPassword is carried
// so the lobby can mark protected rooms.
type Room struct {
	Name        RoomName `json:"name"`
	HasPassword bool     `json:"hasPassword"`
}
