package chat

import "errors"

// Failure taxonomy surfaced to clients as error{message} events. Only
// the originating connection ever sees one of these; deletion notices
// to other connections are informational, not failures.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrPermissionDenied = errors.New("only room creator can delete this room")
	ErrNotMember        = errors.New("not a member of this room")
)
