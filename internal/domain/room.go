package domain

// RoomName is the unique key of a room in the registry.
type RoomName string

// SessionInfo carries what a media plane provider needs to pick (or spin up)
// the client instance serving a room.
type SessionInfo struct {
	Room      RoomName `json:"room"`
	ServerURL string   `json:"serverUrl,omitempty"`
}
