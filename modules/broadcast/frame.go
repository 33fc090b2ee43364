package broadcast

import "encoding/json"

// Frame is the wire envelope used in both directions: a named event
// with an optional payload.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// MarshalFrame encodes an event frame for delivery.
func MarshalFrame(event string, data any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// Outbound payload shapes. Field names are the compatibility surface
// and match the original protocol exactly, hyphens and camelCase
// included.

// UserJoinedPayload notifies room members of a new participant count.
type UserJoinedPayload struct {
	Username     string `json:"username"`
	Participants int    `json:"participants"`
}

// UserLeftPayload notifies room members of a departure.
type UserLeftPayload struct {
	Username     string `json:"username"`
	Participants int    `json:"participants"`
}

// NewAdminPayload announces the successor creator.
type NewAdminPayload struct {
	RoomID   string `json:"roomId"`
	NewAdmin string `json:"newAdmin"`
}

// RoomDeletedPayload is the global deletion notice.
type RoomDeletedPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// ErrorPayload carries a human-readable failure to one connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// AuthenticatedPayload acknowledges an authenticate event.
type AuthenticatedPayload struct {
	Success bool `json:"success"`
}
