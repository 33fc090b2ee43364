package rooms

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/anonchat/domain/chat"
)

// room is a store-internal entity. Membership is an id set with a
// join-order stamp; nothing outside the store ever holds a reference
// into it.
type room struct {
	id        string
	name      string
	creatorID string
	members   map[string]uint64 // userID -> join order
	messages  []chat.Message
	createdAt time.Time
}

// Store owns every room for the lifetime of the process. All mutation
// goes through its methods; the lock is held for the duration of one
// logical operation and never across I/O.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	joinSeq uint64
}

// NewStore creates an empty room store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*room)}
}

// LeaveResult describes what a departure did to the room, so the
// caller can publish the matching events after the commit.
type LeaveResult struct {
	RoomName     string
	Deleted      bool
	NewAdmin     string
	Participants int
	MemberIDs    []string
}

func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// CreateRoom generates a unique id and seeds membership with the
// creator. Collisions are retried; with uuid-derived ids the loop is
// effectively single-pass.
func (s *Store) CreateRoom(name, creatorID string) chat.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newRoomID()
	for s.rooms[id] != nil {
		id = newRoomID()
	}

	s.joinSeq++
	r := &room{
		id:        id,
		name:      name,
		creatorID: creatorID,
		members:   map[string]uint64{creatorID: s.joinSeq},
		messages:  make([]chat.Message, 0),
		createdAt: time.Now(),
	}
	s.rooms[id] = r

	return summarize(r)
}

// Join adds the user to the room, idempotently. It returns the snapshot
// and history delivered to the joining connection, plus the member ids
// for the user-joined fan-out.
func (s *Store) Join(roomID, userID string) (chat.RoomSnapshot, []chat.Message, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return chat.RoomSnapshot{}, nil, nil, chat.ErrRoomNotFound
	}

	if _, member := r.members[userID]; !member {
		s.joinSeq++
		r.members[userID] = s.joinSeq
	}

	history := make([]chat.Message, len(r.messages))
	copy(history, r.messages)

	snapshot := chat.RoomSnapshot{
		ID:           r.id,
		Name:         r.name,
		Participants: len(r.members),
	}
	return snapshot, history, memberIDs(r), nil
}

// Leave removes the user. An emptied room is deleted synchronously; a
// departing creator hands the room to the earliest remaining joiner.
// Absent room or user ids are a no-op, reported through ok=false.
func (s *Store) Leave(roomID, userID string) (LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	if _, member := r.members[userID]; !member {
		return LeaveResult{}, false
	}

	delete(r.members, userID)

	res := LeaveResult{RoomName: r.name, Participants: len(r.members)}

	if len(r.members) == 0 {
		delete(s.rooms, roomID)
		res.Deleted = true
		return res, true
	}

	if r.creatorID == userID {
		r.creatorID = successor(r)
		res.NewAdmin = r.creatorID
	}
	res.MemberIDs = memberIDs(r)
	return res, true
}

// Delete removes the room if the requester is its creator.
func (s *Store) Delete(roomID, requesterID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return "", chat.ErrRoomNotFound
	}
	if r.creatorID != requesterID {
		return "", chat.ErrPermissionDenied
	}

	delete(s.rooms, roomID)
	return r.name, nil
}

// Append records a message and returns the member ids it fans out to.
func (s *Store) Append(roomID string, msg chat.Message) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}

	r.messages = append(r.messages, msg)
	return memberIDs(r), nil
}

// Clear empties the room history. Any current member may clear, not
// only the creator.
func (s *Store) Clear(roomID, requesterID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}
	if _, member := r.members[requesterID]; !member {
		return nil, chat.ErrNotMember
	}

	r.messages = r.messages[:0]
	return memberIDs(r), nil
}

// List returns room summaries ordered newest first.
func (s *Store) List() []chat.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := lo.Map(lo.Values(s.rooms), func(r *room, _ int) chat.RoomSummary {
		return summarize(r)
	})
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// Summary returns one room's summary.
func (s *Store) Summary(roomID string) (chat.RoomSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return chat.RoomSummary{}, false
	}
	return summarize(r), true
}

// RoomsOf returns the ids of every room the user is a member of.
func (s *Store) RoomsOf(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, r := range s.rooms {
		if _, member := r.members[userID]; member {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SweepIdle deletes rooms that are empty and older than maxAge at the
// given instant, returning how many were removed. Empty rooms are
// normally deleted synchronously on the last departure; this is the
// safety net behind that path.
func (s *Store) SweepIdle(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.rooms {
		if len(r.members) == 0 && now.Sub(r.createdAt) > maxAge {
			delete(s.rooms, id)
			removed++
		}
	}
	return removed
}

// successor picks the earliest remaining joiner. JS Set iteration in
// the original artifact yielded insertion order, so "first remaining
// user" already meant earliest joiner; here that choice is explicit.
func successor(r *room) string {
	type entry struct {
		id    string
		order uint64
	}
	entries := lo.MapToSlice(r.members, func(id string, order uint64) entry {
		return entry{id: id, order: order}
	})
	next := lo.MinBy(entries, func(a, b entry) bool {
		return a.order < b.order
	})
	return next.id
}

func memberIDs(r *room) []string {
	return lo.Keys(r.members)
}

func summarize(r *room) chat.RoomSummary {
	return chat.RoomSummary{
		ID:           r.id,
		Name:         r.name,
		Creator:      r.creatorID,
		Participants: len(r.members),
		CreatedAt:    r.createdAt,
	}
}
