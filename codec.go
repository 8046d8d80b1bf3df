package main

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// ArenaInfo describes the fixed arena bounds
type ArenaInfo struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultArena is the process-wide arena, shared read-only by all rooms
var DefaultArena = ArenaInfo{Width: ArenaWidth, Height: ArenaHeight}

// PlayerSnapshot is the public per-player state broadcast each tick.
// Control state is deliberately absent.
type PlayerSnapshot struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
	HP    int     `json:"hp"`
	Score int     `json:"score"`
}

// BulletSnapshot is the public per-projectile state
type BulletSnapshot struct {
	ID uint64  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// GameState is the full per-tick snapshot of one room
type GameState struct {
	Players []PlayerSnapshot `json:"players"`
	Bullets []BulletSnapshot `json:"bullets"`
	Arena   ArenaInfo        `json:"arena"`
}

// LobbyPlayer is one roster entry in a lobby update
type LobbyPlayer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	IsHost bool   `json:"isHost"`
}

// LobbyUpdate is pushed on any join or leave while the room is in Lobby
type LobbyUpdate struct {
	Players []LobbyPlayer `json:"players"`
	HostID  string        `json:"hostId"`
}

// Snapshot builds the wire snapshot for a room. Players are emitted in
// join order and bullets in id order, so the same room state always
// yields an identical snapshot.
func Snapshot(r *Room) GameState {
	gs := GameState{
		Players: make([]PlayerSnapshot, 0, len(r.order)),
		Bullets: make([]BulletSnapshot, 0, len(r.projectiles)),
		Arena:   DefaultArena,
	}
	for _, id := range r.order {
		p := r.players[id]
		gs.Players = append(gs.Players, PlayerSnapshot{
			ID:    p.ID,
			Name:  p.Name,
			X:     p.X,
			Y:     p.Y,
			Angle: p.Angle,
			HP:    p.HP,
			Score: p.Score,
		})
	}
	for _, proj := range r.projectiles {
		gs.Bullets = append(gs.Bullets, BulletSnapshot{ID: proj.ID, X: proj.X, Y: proj.Y})
	}
	return gs
}

// LobbyState builds the current roster for lobby pushes
func (r *Room) LobbyState() LobbyUpdate {
	lu := LobbyUpdate{
		Players: make([]LobbyPlayer, 0, len(r.order)),
		HostID:  r.HostID,
	}
	for _, id := range r.order {
		p := r.players[id]
		lu.Players = append(lu.Players, LobbyPlayer{
			ID:     p.ID,
			Name:   p.Name,
			Score:  p.Score,
			IsHost: p.ID == r.HostID,
		})
	}
	return lu
}

// BroadcastEvent marshals an envelope once and pushes it to every
// session bound to the room.
func (r *Room) BroadcastEvent(evt string, data interface{}) {
	b, err := json.Marshal(Envelope{T: evt, Data: data})
	if err != nil {
		Log.Errorw("marshal event", "evt", evt, "err", err)
		return
	}
	for _, s := range r.sessions {
		s.SendRaw(b)
	}
}

// BroadcastSnapshot sends the post-tick state to every session. The
// JSON form is marshaled once; sessions that opted into binary frames
// get the same snapshot msgpack-encoded instead.
func (r *Room) BroadcastSnapshot() {
	gs := Snapshot(r)

	var jsonFrame, binFrame []byte
	for _, s := range r.sessions {
		if s.WantsBinary() {
			if binFrame == nil {
				var err error
				binFrame, err = msgpack.Marshal(gs)
				if err != nil {
					Log.Errorw("msgpack snapshot", "room", r.Code, "err", err)
					continue
				}
			}
			s.SendBinary(binFrame)
			continue
		}
		if jsonFrame == nil {
			var err error
			jsonFrame, err = json.Marshal(Envelope{T: EvtGameState, Data: gs})
			if err != nil {
				Log.Errorw("marshal snapshot", "room", r.Code, "err", err)
				return
			}
		}
		s.SendRaw(jsonFrame)
	}
}
