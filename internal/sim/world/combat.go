package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/sim/entity"
)

const (
	hurtTicks    = 10
	contactTicks = 30
	knockback    = 6.0
	aggroRange   = 16.0
	wanderTicks  = 120
)

// hurt applies damage with knockback away from src. Each target has a
// short invulnerability window after a hit.
func (w *World) hurt(e *entity.Entity, dmg int, src mgl64.Vec2, tick uint64) bool {
	if !e.Alive() || dmg <= 0 {
		return false
	}
	var until *uint64
	switch e.Kind {
	case entity.KindPlayer:
		until = &e.Player.HurtUntil
	case entity.KindMob:
		until = &e.Mob.HurtUntil
	default:
		return false
	}
	if tick < *until {
		return false
	}
	*until = tick + hurtTicks

	e.HP -= dmg
	dir := 1.0
	if e.Center().X() < src.X() {
		dir = -1
	}
	e.Vel = mgl64.Vec2{dir * knockback, -knockback}
	if e.HP <= 0 {
		e.HP = 0
		e.Dead = true
	}
	return true
}

func (w *World) stepCombat(tick uint64) {
	var players, mobs []*entity.Entity
	for _, s := range w.order {
		if s.player != nil && s.player.Alive() {
			players = append(players, s.player)
		}
	}
	w.registry.Snapshot().Each(func(e *entity.Entity) bool {
		if e.Kind == entity.KindMob && e.Alive() && !w.despawning(e) {
			mobs = append(mobs, e)
		}
		return true
	})

	for _, m := range mobs {
		w.think(m, players, tick)
		for _, p := range players {
			if tick < m.Mob.ContactUntil || !overlaps(m, p) {
				continue
			}
			if w.hurt(p, m.Mob.Damage, m.Center(), tick) {
				m.Mob.ContactUntil = tick + contactTicks
			}
		}
	}
	for _, e := range players {
		w.trapDamage(e, tick)
	}
	for _, e := range mobs {
		w.trapDamage(e, tick)
	}
}

// think steers a mob toward the nearest player in range, or wanders.
func (w *World) think(m *entity.Entity, players []*entity.Entity, tick uint64) {
	mob := m.Mob
	if tick < mob.HurtUntil {
		return
	}
	var target *entity.Entity
	best := aggroRange
	for _, p := range players {
		if d := p.Center().Sub(m.Center()).Len(); d <= best {
			best, target = d, p
		}
	}
	if target != nil {
		dx := target.Center().X() - m.Center().X()
		switch {
		case dx > 0.2:
			mob.Dir = 1
		case dx < -0.2:
			mob.Dir = -1
		default:
			mob.Dir = 0
		}
	} else if tick >= mob.ThinkAt {
		mob.Dir = w.rng.Intn(3) - 1
		mob.ThinkAt = tick + wanderTicks
	}
	m.Vel[0] = float64(mob.Dir) * mob.Speed
}

func (w *World) trapDamage(e *entity.Entity, tick uint64) {
	lo, hi := e.Bounds()
	for y := int(math.Floor(lo.Y())); y < int(math.Ceil(hi.Y())); y++ {
		for x := int(math.Floor(lo.X())); x < int(math.Ceil(hi.X())); x++ {
			if !w.tiles.InBounds(x, y) {
				continue
			}
			d, _ := w.cat.Block(w.tiles.Tile(x, y))
			if d.ContactDamage > 0 && e.OverlapsTile(x, y) {
				w.hurt(e, d.ContactDamage, mgl64.Vec2{float64(x) + 0.5, float64(y) + 0.5}, tick)
				return
			}
		}
	}
}

func overlaps(a, b *entity.Entity) bool {
	alo, ahi := a.Bounds()
	blo, bhi := b.Bounds()
	return alo.X() < bhi.X() && ahi.X() > blo.X() && alo.Y() < bhi.Y() && ahi.Y() > blo.Y()
}

// stepLife handles player death and respawn and removes dead mobs.
func (w *World) stepLife(tick uint64) {
	for _, s := range w.order {
		p := s.player
		if p == nil || p.Alive() {
			continue
		}
		pl := p.Player
		if pl.RespawnAt == 0 {
			p.Dead = true
			p.Vel = mgl64.Vec2{}
			pl.MoveX, pl.Jump = 0, false
			pl.RespawnAt = tick + uint64(w.tune.RespawnTicks)
			s.breaking.Reset()
			if s.open != nil {
				w.closeContainer(s)
			}
			w.systemChat(s, "you died")
			w.logger.Printf("death: %s at (%.1f,%.1f)", s.Name, p.Pos.X(), p.Pos.Y())
			continue
		}
		if tick < pl.RespawnAt {
			continue
		}
		p.Pos = w.standingPos(w.spawnOf(p), p.Size)
		p.Vel = mgl64.Vec2{}
		p.HP, p.Dead = p.MaxHP, false
		pl.RespawnAt = 0
	}

	w.registry.Snapshot().Each(func(e *entity.Entity) bool {
		if e.Kind != entity.KindMob || e.Alive() || w.despawning(e) {
			return true
		}
		if def, ok := w.cat.Mobs.ByID[e.Mob.Tag]; ok {
			c := e.Center()
			x, y := int(math.Floor(c.X())), int(math.Floor(c.Y()))
			w.spawnDrops(w.engine.RollDrops(x, y, def.Drops), tick)
		}
		w.despawn(e)
		return true
	})
}

// spawnOf returns the player's bed if it still stands, else the world spawn.
func (w *World) spawnOf(p *entity.Entity) [2]int {
	pl := p.Player
	if !pl.BedSpawn {
		return pl.Spawn
	}
	x, y := pl.Spawn[0], pl.Spawn[1]
	d, ok := w.cat.Block(w.tiles.Tile(x, y))
	if ok && d.SpawnPoint {
		return pl.Spawn
	}
	pl.BedSpawn = false
	pl.Spawn = w.tune.World.Spawn
	return pl.Spawn
}
