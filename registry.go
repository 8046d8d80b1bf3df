package main

import "strings"

const (
	roomCodeLen = 6
	// Visually ambiguous characters (0/O, 1/I) are excluded so codes
	// survive being read out loud or scribbled on paper.
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// RoomRegistry creates rooms with unique codes and tracks them for the
// lifetime of the process. Like Room, it is owned by the scheduler
// goroutine and must not be touched from anywhere else.
type RoomRegistry struct {
	rooms map[string]*Room
}

// NewRoomRegistry creates an empty registry
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*Room)}
}

// CreateRoom allocates a room under a fresh code. It never fails: code
// generation retries until an unused code is drawn.
func (rr *RoomRegistry) CreateRoom() *Room {
	for {
		code := generateRoomCode()
		if _, taken := rr.rooms[code]; taken {
			continue
		}
		room := NewRoom(code)
		rr.rooms[code] = room
		return room
	}
}

// Lookup returns the room for a code, case-normalized to uppercase
func (rr *RoomRegistry) Lookup(code string) (*Room, bool) {
	room, ok := rr.rooms[strings.ToUpper(strings.TrimSpace(code))]
	return room, ok
}

// RemovePlayer removes the player from whichever room holds it,
// reassigning the host slot and deleting the room once empty. Remaining
// lobby members are notified of the new roster. Idempotent: unknown
// player ids are a no-op.
func (rr *RoomRegistry) RemovePlayer(playerID string) {
	for code, room := range rr.rooms {
		if !room.RemovePlayer(playerID) {
			continue
		}
		if room.PlayerCount() == 0 {
			delete(rr.rooms, code)
		} else if room.Status == RoomLobby {
			room.BroadcastEvent(EvtLobbyUpdate, room.LobbyState())
		}
		return
	}
}

// DropIfEmpty deletes the room if it holds no players. Used when the
// first join of a freshly created room is rejected, so the room never
// outlives the request that created it.
func (rr *RoomRegistry) DropIfEmpty(code string) {
	if room, ok := rr.rooms[code]; ok && room.PlayerCount() == 0 {
		delete(rr.rooms, code)
	}
}

// RoomCount returns the number of live rooms
func (rr *RoomRegistry) RoomCount() int {
	return len(rr.rooms)
}

// RunningRooms returns all rooms currently in the Running state
func (rr *RoomRegistry) RunningRooms() []*Room {
	out := make([]*Room, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		if room.Status == RoomRunning {
			out = append(out, room)
		}
	}
	return out
}

func generateRoomCode() string {
	b := make([]byte, roomCodeLen)
	for i := range b {
		b[i] = roomCodeAlphabet[int(randFloat()*float64(len(roomCodeAlphabet)))%len(roomCodeAlphabet)]
	}
	return string(b)
}
