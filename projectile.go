package main

import "math"

const (
	ProjectileSpeed      = 520.0 // arena units/s
	ProjectileRadius     = 5.0
	ProjectileDamage     = 25
	ProjectileCullMargin = 50.0 // how far past the walls a projectile may travel
	// Projectiles spawn just outside the shooter's collision radius so
	// they can never hit their owner on the spawn tick.
	ProjectileSpawnOffset = PlayerRadius + ProjectileRadius + 2
)

// Projectile is a bullet in flight. IDs are sequential within a room.
type Projectile struct {
	ID      uint64
	OwnerID string
	X, Y    float64
	VX, VY  float64
}

// NewProjectile creates a projectile fired by a player along the given angle
func NewProjectile(id uint64, owner *Player, angle float64) *Projectile {
	return &Projectile{
		ID:      id,
		OwnerID: owner.ID,
		X:       owner.X + math.Cos(angle)*ProjectileSpawnOffset,
		Y:       owner.Y + math.Sin(angle)*ProjectileSpawnOffset,
		VX:      math.Cos(angle) * ProjectileSpeed,
		VY:      math.Sin(angle) * ProjectileSpeed,
	}
}

// Update advances the projectile one tick
func (p *Projectile) Update(dt float64) {
	p.X += p.VX * dt
	p.Y += p.VY * dt
}

// OutOfBounds reports whether the projectile has left the arena plus margin
func (p *Projectile) OutOfBounds() bool {
	return p.X < -ProjectileCullMargin || p.X > ArenaWidth+ProjectileCullMargin ||
		p.Y < -ProjectileCullMargin || p.Y > ArenaHeight+ProjectileCullMargin
}
