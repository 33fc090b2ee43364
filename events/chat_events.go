package events

import (
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/anonchat/domain/chat"
)

// Every event is published after the triggering store mutation has
// committed, so a client that queries state right after receiving one
// observes a consistent view. Room-scoped events carry the member ids
// captured at commit time; the broadcast module resolves those to live
// connections. Global events carry no recipient list.

// MessageSentEvent fans a stored message out to the room.
type MessageSentEvent struct {
	Message   chat.Message `json:"message"`
	MemberIDs []string     `json:"memberIds"`
}

// UserJoinedEvent notifies existing members of a new participant.
// The joiner itself gets a room-joined reply instead, so it is excluded.
type UserJoinedEvent struct {
	RoomID        string   `json:"roomId"`
	Username      string   `json:"username"`
	Participants  int      `json:"participants"`
	MemberIDs     []string `json:"memberIds"`
	ExcludeUserID string   `json:"excludeUserId"`
}

// UserLeftEvent notifies remaining members of a departure.
type UserLeftEvent struct {
	RoomID       string   `json:"roomId"`
	Username     string   `json:"username"`
	Participants int      `json:"participants"`
	MemberIDs    []string `json:"memberIds"`
}

// AdminChangedEvent announces the successor after the creator departs.
type AdminChangedEvent struct {
	RoomID    string   `json:"roomId"`
	NewAdmin  string   `json:"newAdmin"`
	MemberIDs []string `json:"memberIds"`
}

// RoomDeletedEvent is global: deletion affects discovery for
// connections that were never in the room.
type RoomDeletedEvent struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// RoomsListEvent is the global room directory refresh.
type RoomsListEvent struct {
	Rooms []chat.RoomSummary `json:"rooms"`
}

// ChatClearedEvent tells room members the history was emptied.
type ChatClearedEvent struct {
	RoomID    string   `json:"roomId"`
	MemberIDs []string `json:"memberIds"`
}

// Event definitions for the rooms domain.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"rooms",
		"MessageSent",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"rooms",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"rooms",
		"UserLeft",
		"v1",
	)

	AdminChangedV1 = helper.EventDefinition[AdminChangedEvent](
		"rooms",
		"AdminChanged",
		"v1",
	)

	RoomDeletedV1 = helper.EventDefinition[RoomDeletedEvent](
		"rooms",
		"RoomDeleted",
		"v1",
	)

	RoomsListV1 = helper.EventDefinition[RoomsListEvent](
		"rooms",
		"RoomsList",
		"v1",
	)

	ChatClearedV1 = helper.EventDefinition[ChatClearedEvent](
		"rooms",
		"ChatCleared",
		"v1",
	)
)
