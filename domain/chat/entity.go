package chat

import "time"

// MessageKind discriminates text messages from shared-file
// descriptors. Text messages leave Kind empty so it is omitted from
// the wire frame; only file messages carry type:"file".
type MessageKind string

const KindFile MessageKind = "file"

// User is a connected (or disconnected-pending-reap) participant.
// The id is client-supplied at profile creation; ConnectionID is empty
// while the user is inside the disconnect grace window.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	AvatarColor  string    `json:"avatar"`
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Message is an immutable history entry. File messages carry a
// descriptor for an already-stored upload; the bytes themselves never
// pass through this service.
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	SenderID   string      `json:"userId"`
	SenderName string      `json:"username"`
	Avatar     string      `json:"avatar"`
	Kind       MessageKind `json:"type,omitempty"`
	Content    string      `json:"content,omitempty"`
	FileURL    string      `json:"fileUrl,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	FileSize   int64       `json:"fileSize,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// RoomSummary is the listing shape sent in rooms-list payloads and
// returned by the REST room endpoints.
type RoomSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Creator      string    `json:"creator"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RoomSnapshot is the view delivered to a joining connection.
type RoomSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}
