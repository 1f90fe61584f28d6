package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/sim/blocks"
	"tilecraft.ai/internal/sim/entity"
)

// Units are tiles and seconds.
const (
	gravity   = 60.0
	maxFall   = 30.0
	walkSpeed = 6.0
	jumpVel   = 14.0

	arrowGravity = 20.0
	arrowSpeed   = 24.0
	arrowTTL     = 180

	itemTTL          = 18000
	dropPickupDelay  = 10
	throwPickupDelay = 60
	pickupRadius     = 1.5
)

func (w *World) dt() float64 { return 1 / float64(w.tune.TickRateHz) }

// solidAt treats everything outside the world as solid.
func (w *World) solidAt(x, y int) bool {
	if !w.tiles.InBounds(x, y) {
		return true
	}
	return w.cat.IsSolid(w.tiles.Tile(x, y))
}

func (w *World) collides(pos, size mgl64.Vec2) bool {
	const eps = 1e-6
	x0 := int(math.Floor(pos.X() + eps))
	x1 := int(math.Floor(pos.X() + size.X() - eps))
	y0 := int(math.Floor(pos.Y() + eps))
	y1 := int(math.Floor(pos.Y() + size.Y() - eps))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if w.solidAt(x, y) {
				return true
			}
		}
	}
	return false
}

func (w *World) blockedAt(e *entity.Entity) bool { return w.collides(e.Pos, e.Size) }

// moveBody integrates gravity and moves e one axis at a time, snapping to
// tile edges on contact. It reports whether horizontal motion was blocked.
func (w *World) moveBody(e *entity.Entity, g float64) bool {
	dt := w.dt()
	vy := math.Min(e.Vel.Y()+g*dt, maxFall)
	e.Vel = mgl64.Vec2{e.Vel.X(), vy}

	blockedX := false
	if dx := e.Vel.X() * dt; dx != 0 {
		next := mgl64.Vec2{e.Pos.X() + dx, e.Pos.Y()}
		if w.collides(next, e.Size) {
			blockedX = true
			if dx > 0 {
				next[0] = math.Floor(next.X()+e.Size.X()) - e.Size.X()
			} else {
				next[0] = math.Floor(next.X()) + 1
			}
			if w.collides(next, e.Size) {
				next = e.Pos
			}
			e.Vel[0] = 0
		}
		e.Pos = next
	}

	e.OnGround = false
	if dy := e.Vel.Y() * dt; dy != 0 {
		next := mgl64.Vec2{e.Pos.X(), e.Pos.Y() + dy}
		if w.collides(next, e.Size) {
			if dy > 0 {
				next[1] = math.Floor(next.Y()+e.Size.Y()) - e.Size.Y()
				e.OnGround = true
			} else {
				next[1] = math.Floor(next.Y()) + 1
			}
			if w.collides(next, e.Size) {
				next = e.Pos
			}
			e.Vel[1] = 0
		}
		e.Pos = next
	}
	return blockedX
}

func (w *World) stepPhysics(tick uint64) {
	holders := w.pickupHolders()
	for _, e := range w.registry.Snapshot().Entities() {
		if w.despawning(e) {
			continue
		}
		switch e.Kind {
		case entity.KindPlayer:
			if !e.Alive() {
				continue
			}
			p := e.Player
			vx := float64(p.MoveX) * walkSpeed
			if tick < p.HurtUntil {
				vx = e.Vel.X()
			}
			e.Vel[0] = vx
			if p.Jump && e.OnGround {
				e.Vel[1] = -jumpVel
			}
			w.moveBody(e, gravity)
		case entity.KindMob:
			if !e.Alive() {
				continue
			}
			if w.moveBody(e, gravity) && e.OnGround {
				e.Vel[1] = -e.Mob.JumpVel
			}
		case entity.KindItem:
			w.stepItem(e, holders, tick)
		case entity.KindProjectile:
			w.stepProjectile(e, tick)
		}
	}
}

func (w *World) despawning(e *entity.Entity) bool {
	_, ok := w.despawnSet[e.ID]
	return ok
}

// pickupHolders lists live players of synced sessions.
func (w *World) pickupHolders() []*Session {
	out := make([]*Session, 0, len(w.order))
	for _, s := range w.order {
		if s.synced && s.player != nil && s.player.Alive() {
			out = append(out, s)
		}
	}
	return out
}

func (w *World) stepItem(e *entity.Entity, holders []*Session, tick uint64) {
	it := e.Item
	if tick >= it.ExpiresAt {
		w.despawn(e)
		return
	}
	if e.OnGround {
		e.Vel[0] *= 0.8
	}
	w.moveBody(e, gravity)
	if tick < it.PickupAt {
		return
	}
	c := e.Center()
	for _, s := range holders {
		if s.player.Center().Sub(c).Len() > pickupRadius {
			continue
		}
		left := s.player.Player.Inv.Add(it.Stack, w.engine.Limit)
		if left == it.Stack.Count {
			continue
		}
		s.invDirty = true
		if left == 0 {
			w.despawn(e)
			return
		}
		it.Stack.Count = left
	}
}

func (w *World) stepProjectile(e *entity.Entity, tick uint64) {
	pr := e.Projectile
	if tick >= pr.ExpiresAt {
		w.despawn(e)
		return
	}
	dt := w.dt()
	e.Vel[1] = math.Min(e.Vel.Y()+arrowGravity*dt, maxFall)
	e.Pos = e.Pos.Add(e.Vel.Mul(dt))
	if w.collides(e.Pos, e.Size) {
		w.despawn(e)
		return
	}
	lo, hi := e.Bounds()
	hit := false
	w.registry.Snapshot().Each(func(o *entity.Entity) bool {
		if o == e || o.ID == pr.Owner || !o.Alive() {
			return true
		}
		if o.Kind != entity.KindMob && !(o.Kind == entity.KindPlayer && w.tune.PvP) {
			return true
		}
		olo, ohi := o.Bounds()
		if lo.X() < ohi.X() && hi.X() > olo.X() && lo.Y() < ohi.Y() && hi.Y() > olo.Y() {
			w.hurt(o, pr.Damage, e.Center(), tick)
			hit = true
			return false
		}
		return true
	})
	if hit {
		w.despawn(e)
	}
}

// spawnDrops turns block and mob drops into item entities.
func (w *World) spawnDrops(drops []blocks.Drop, tick uint64) {
	for _, d := range drops {
		pos := mgl64.Vec2{float64(d.X) + 0.25, float64(d.Y) + 0.25}
		vel := mgl64.Vec2{(w.rng.Float64() - 0.5) * 2, -3}
		w.spawnItem(d.Stack, pos, vel, tick+dropPickupDelay, tick)
	}
}

func (w *World) spawnItem(st entity.Stack, pos, vel mgl64.Vec2, pickupAt, tick uint64) *entity.Entity {
	if st.Empty() {
		return nil
	}
	e, ok := w.factories.Spawn(w.registry, entity.TagItem, pos)
	if !ok {
		w.logger.Printf("spawn item %s: factory failed", st.Item)
		return nil
	}
	e.Vel = vel
	e.Item.Stack = st
	e.Item.PickupAt = pickupAt
	e.Item.ExpiresAt = tick + itemTTL
	return e
}

// throwItem drops st in front of p.
func (w *World) throwItem(p *entity.Entity, st entity.Stack, tick uint64) {
	dir := 1.0
	if p.Vel.X() < 0 || p.Player.MoveX < 0 {
		dir = -1
	}
	c := p.Center()
	pos := mgl64.Vec2{c.X() - 0.25, c.Y() - 0.5}
	w.spawnItem(st, pos, mgl64.Vec2{dir * 5, -4}, tick+throwPickupDelay, tick)
}

func (w *World) shoot(p *entity.Entity, dir mgl64.Vec2, damage int, tick uint64) {
	c := p.Center()
	e, ok := w.factories.Spawn(w.registry, entity.TagArrow, c.Sub(mgl64.Vec2{0.2, 0.1}))
	if !ok {
		return
	}
	e.Vel = dir.Mul(arrowSpeed)
	e.Projectile.Owner = p.ID
	e.Projectile.Damage = damage
	e.Projectile.ExpiresAt = tick + arrowTTL
}
