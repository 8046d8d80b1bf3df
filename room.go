package main

import "errors"

const (
	ArenaWidth  = 1400.0
	ArenaHeight = 800.0

	maxPlayersPerRoom = 16

	// ResetScoresOnStart controls whether scores are zeroed on every
	// StartGame, giving each match a well-defined winner. Set to false
	// to carry scores across restarts within the same room.
	ResetScoresOnStart = true
)

// RoomStatus is the room lifecycle state
type RoomStatus int

const (
	RoomLobby RoomStatus = iota
	RoomRunning
)

var (
	ErrNameRequired = errors.New("name required")
	ErrRoomStarted  = errors.New("room already started")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomNotFound = errors.New("room not found")
)

// Session is the outbound half of a connection bound to a room player.
// Sends must never block the simulation.
type Session interface {
	SendRaw(data []byte)    // pre-marshaled JSON text frame
	SendBinary(data []byte) // msgpack binary frame
	WantsBinary() bool
}

// Room owns one arena's full mutable state. It is not safe for
// concurrent use: every method must run on the scheduler goroutine.
type Room struct {
	Code   string
	Status RoomStatus
	HostID string

	players  map[string]*Player
	order    []string // join order; drives collision and snapshot ordering
	sessions map[string]Session

	projectiles []*Projectile
	nextProjID  uint64
}

// NewRoom creates an empty room in Lobby status
func NewRoom(code string) *Room {
	return &Room{
		Code:     code,
		Status:   RoomLobby,
		players:  make(map[string]*Player),
		sessions: make(map[string]Session),
	}
}

// AddPlayer validates the name and inserts a new player at a random
// spawn. Joins are only accepted while the room is in Lobby. The first
// player to join becomes host.
func (r *Room) AddPlayer(id, name string) (*Player, error) {
	if r.Status != RoomLobby {
		return nil, ErrRoomStarted
	}
	name = SanitizeName(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if len(r.players) >= maxPlayersPerRoom {
		return nil, ErrRoomFull
	}
	p := NewPlayer(id, name)
	r.players[id] = p
	r.order = append(r.order, id)
	if r.HostID == "" {
		r.HostID = id
	}
	return p, nil
}

// RemovePlayer removes a player and reassigns the host slot if needed.
// Returns false if the player is not in this room.
func (r *Room) RemovePlayer(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	delete(r.sessions, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.HostID == id {
		r.HostID = ""
		if len(r.order) > 0 {
			r.HostID = r.order[0]
		}
	}
	return true
}

// BindSession attaches an outbound session to a player id
func (r *Room) BindSession(playerID string, s Session) {
	r.sessions[playerID] = s
}

// Start transitions Lobby -> Running. Only the host may start; any
// other request is a silent no-op. On success every player is reset to
// full health at a fresh spawn and the projectile state is cleared.
// Returns whether the transition happened.
func (r *Room) Start(by string) bool {
	if r.Status != RoomLobby || by != r.HostID {
		return false
	}
	r.Status = RoomRunning
	for _, p := range r.players {
		p.Respawn()
		if ResetScoresOnStart {
			p.Score = 0
		}
	}
	r.projectiles = nil
	r.nextProjID = 0
	return true
}

// SetInput overwrites a player's control state. A non-finite angle is
// ignored and the stale facing retained. Unknown player ids are a no-op
// (input can arrive after disconnect).
func (r *Room) SetInput(id string, ctrl ControlState, angle *float64) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	p.Control = ctrl
	if angle != nil && IsFinite(*angle) {
		p.Angle = *angle
	}
}

// FireProjectile spawns a projectile for the player along the given
// angle, falling back to the player's last facing when the angle is
// absent or not finite. Rejected unless the room is running.
func (r *Room) FireProjectile(id string, angle *float64) bool {
	if r.Status != RoomRunning {
		return false
	}
	p, ok := r.players[id]
	if !ok {
		return false
	}
	a := p.Angle
	if angle != nil && IsFinite(*angle) {
		a = *angle
	}
	r.nextProjID++
	r.projectiles = append(r.projectiles, NewProjectile(r.nextProjID, p, a))
	return true
}

// Tick advances the room by dt seconds: movement, projectile
// integration, culling, then collision on post-movement positions.
func (r *Room) Tick(dt float64) {
	// 1. Movement: integrate control state and clamp to the walls.
	for _, id := range r.order {
		p := r.players[id]
		dir := Vec2{
			X: boolToF(p.Control.Right) - boolToF(p.Control.Left),
			Y: boolToF(p.Control.Down) - boolToF(p.Control.Up),
		}
		if dir.X != 0 || dir.Y != 0 {
			step := dir.Normalized().Scale(PlayerSpeed * dt)
			p.X += step.X
			p.Y += step.Y
		}
		p.X = Clamp(p.X, PlayerRadius, ArenaWidth-PlayerRadius)
		p.Y = Clamp(p.Y, PlayerRadius, ArenaHeight-PlayerRadius)
	}

	// 2-4. Projectiles: integrate, cull, resolve hits. A projectile is
	// consumed by its first hit and never damages its owner.
	survivors := r.projectiles[:0]
	for _, proj := range r.projectiles {
		proj.Update(dt)
		if proj.OutOfBounds() {
			continue
		}
		if r.resolveHit(proj) {
			continue
		}
		survivors = append(survivors, proj)
	}
	r.projectiles = survivors
}

// resolveHit tests proj against every live player in join order and
// applies damage to the first overlap. Returns true if the projectile hit.
func (r *Room) resolveHit(proj *Projectile) bool {
	for _, id := range r.order {
		p := r.players[id]
		if p.HP <= 0 || p.ID == proj.OwnerID {
			continue
		}
		if !CirclesOverlap(proj.X, proj.Y, ProjectileRadius, p.X, p.Y, PlayerRadius) {
			continue
		}
		p.HP -= ProjectileDamage
		if p.HP <= 0 {
			p.HP = 0
			if attacker, ok := r.players[proj.OwnerID]; ok {
				attacker.Score++
			}
			p.Respawn()
		}
		return true
	}
	return false
}

// PlayerCount returns the number of players in the room
func (r *Room) PlayerCount() int {
	return len(r.players)
}

// Player returns the player with the given id, or nil
func (r *Room) Player(id string) *Player {
	return r.players[id]
}

// HasPlayer reports whether the player is in this room
func (r *Room) HasPlayer(id string) bool {
	_, ok := r.players[id]
	return ok
}

func boolToF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
