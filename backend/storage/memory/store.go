package memory

import (
	"sort"
	"sync"

	"github.com/adwski/signaling-relay/backend/model"
)

// MemStore keeps room rosters. Rooms reference connections by id only,
// connection teardown is a map deletion.
type MemStore struct {
	mx    *sync.Mutex
	rooms map[string]map[string]model.Participant // roomID -> connID -> participant
	conns map[string]map[string]struct{}          // connID -> set of roomIDs
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:    &sync.Mutex{},
		rooms: make(map[string]map[string]model.Participant),
		conns: make(map[string]map[string]struct{}),
	}
}

// JoinRoom records participant in the room, creating it if absent.
// It returns every other participant that was in the room before the join.
// Re-joining overwrites the previous record of the same connection.
func (ms *MemStore) JoinRoom(roomID string, p model.Participant) []model.Participant {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.rooms[roomID]
	if !ok {
		room = make(map[string]model.Participant)
		ms.rooms[roomID] = room
	}
	others := snapshot(room, p.ConnID)
	room[p.ConnID] = p

	joined, ok := ms.conns[p.ConnID]
	if !ok {
		joined = make(map[string]struct{})
		ms.conns[p.ConnID] = joined
	}
	joined[roomID] = struct{}{}
	return others
}

// LeaveRoom removes connection from the room and deletes the room if it becomes empty.
// It returns the remaining participants and whether connection was a member at all.
func (ms *MemStore) LeaveRoom(roomID, connID string) ([]model.Participant, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	return ms.leave(roomID, connID)
}

// LeaveAll removes connection from every room it is in.
// Result maps each left room to its remaining participants.
func (ms *MemStore) LeaveAll(connID string) map[string][]model.Participant {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	left := make(map[string][]model.Participant, len(ms.conns[connID]))
	for roomID := range ms.conns[connID] {
		if remaining, ok := ms.leave(roomID, connID); ok {
			left[roomID] = remaining
		}
	}
	return left
}

func (ms *MemStore) leave(roomID, connID string) ([]model.Participant, bool) {
	room, ok := ms.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, ok = room[connID]; !ok {
		return nil, false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(ms.rooms, roomID)
	}

	if joined, ok := ms.conns[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(ms.conns, connID)
		}
	}
	return snapshot(room, ""), true
}

// Participant looks up the record of connection in the room.
func (ms *MemStore) Participant(roomID, connID string) (model.Participant, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	p, ok := ms.rooms[roomID][connID]
	return p, ok
}

// Participants returns all participants of the room, empty if room does not exist.
func (ms *MemStore) Participants(roomID string) []model.Participant {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	return snapshot(ms.rooms[roomID], "")
}

// Stats returns number of rooms and total number of room memberships.
func (ms *MemStore) Stats() (rooms int, participants int) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	for _, room := range ms.rooms {
		participants += len(room)
	}
	return len(ms.rooms), participants
}

// snapshot copies room roster skipping exclude. Order is stable by connection id.
func snapshot(room map[string]model.Participant, exclude string) []model.Participant {
	out := make([]model.Participant, 0, len(room))
	for connID, p := range room {
		if connID != exclude {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnID < out[j].ConnID
	})
	return out
}
