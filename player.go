package main

import (
	"crypto/rand"
	"strings"
)

const (
	PlayerRadius = 18.0
	PlayerMaxHP  = 100
	PlayerSpeed  = 260.0 // arena units/s
	MaxNameLen   = 20
	SpawnMargin  = 50.0 // wall margin for random spawn points
)

// ControlState is the player's last received movement intent, consumed
// each tick. It is never broadcast.
type ControlState struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
}

// Player represents a player inside a room. All fields are owned by the
// room and mutated only on the scheduler goroutine.
type Player struct {
	ID    string
	Name  string
	X, Y  float64
	Angle float64 // facing, radians
	HP    int
	Score int

	Control ControlState
}

// NewPlayer creates a player at a random spawn point with full health
func NewPlayer(id, name string) *Player {
	p := &Player{
		ID:   id,
		Name: name,
		HP:   PlayerMaxHP,
	}
	p.X, p.Y = randomSpawn()
	return p
}

// Respawn moves the player to a fresh spawn point and restores full health
func (p *Player) Respawn() {
	p.X, p.Y = randomSpawn()
	p.HP = PlayerMaxHP
}

// randomSpawn picks a uniform point within the arena minus the wall
// margin. Spawns are independent; overlapping players are allowed.
func randomSpawn() (float64, float64) {
	x := SpawnMargin + randFloat()*(ArenaWidth-2*SpawnMargin)
	y := SpawnMargin + randFloat()*(ArenaHeight-2*SpawnMargin)
	return x, y
}

// SanitizeName trims whitespace and truncates to MaxNameLen runes, so
// a multibyte name keeps valid UTF-8. Returns "" if nothing printable
// remains.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > MaxNameLen {
		name = string(r[:MaxNameLen])
	}
	return name
}

// randFloat returns a random float64 in [0, 1)
var randSrc uint64

func randFloat() float64 {
	// Simple xorshift for non-crypto random
	randSrc ^= randSrc << 13
	randSrc ^= randSrc >> 7
	randSrc ^= randSrc << 17
	if randSrc == 0 {
		randSrc = 1
	}
	return float64(randSrc%10000) / 10000.0
}

func init() {
	// Seed from crypto/rand
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i, v := range b {
		randSrc |= uint64(v) << (uint(i) * 8)
	}
	if randSrc == 0 {
		randSrc = 1
	}
}
