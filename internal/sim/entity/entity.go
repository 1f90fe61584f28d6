package entity

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/protocol"
)

type ID uint64

type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindMob
	KindItem
	KindProjectile
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "PLAYER"
	case KindMob:
		return "MOB"
	case KindItem:
		return "ITEM"
	case KindProjectile:
		return "PROJECTILE"
	default:
		return "UNKNOWN"
	}
}

// Entity is a tagged variant: Kind selects which one payload pointer is set.
// Fields are owned by the tick goroutine; other goroutines read View().
type Entity struct {
	ID   ID
	Kind Kind

	// Pos is the top-left corner of the AABB, in tiles.
	Pos      mgl64.Vec2
	Vel      mgl64.Vec2
	Size     mgl64.Vec2
	OnGround bool

	HP, MaxHP int
	Dead      bool

	Player     *Player
	Mob        *Mob
	Item       *Item
	Projectile *Projectile

	view atomic.Pointer[View]
}

type Player struct {
	Name  string
	Class string
	Inv   *Inventory

	// Spawn is a tile coordinate; the player respawns standing on it.
	Spawn     [2]int
	BedSpawn  bool
	RespawnAt uint64
	HurtUntil uint64

	MoveX int
	Jump  bool
	Seq   uint64
}

type Mob struct {
	Tag          string
	Damage       int
	Speed        float64
	JumpVel      float64
	Dir          int
	ThinkAt      uint64
	ContactUntil uint64
	HurtUntil    uint64
}

type Item struct {
	Stack     Stack
	PickupAt  uint64
	ExpiresAt uint64
}

type Projectile struct {
	Owner     ID
	Damage    int
	ExpiresAt uint64
}

// View is an immutable per-tick copy of what clients and observers see.
type View struct {
	Tick  uint64
	Wire  protocol.EntityState
	Pos   mgl64.Vec2
	Size  mgl64.Vec2
	Alive bool
}

func (e *Entity) Center() mgl64.Vec2 {
	return e.Pos.Add(e.Size.Mul(0.5))
}

// Bounds returns the AABB as min and max corners.
func (e *Entity) Bounds() (mgl64.Vec2, mgl64.Vec2) {
	return e.Pos, e.Pos.Add(e.Size)
}

// Overlaps reports whether the AABB intersects tile (x,y).
func (e *Entity) OverlapsTile(x, y int) bool {
	lo, hi := e.Bounds()
	const eps = 1e-9
	return lo.X() < float64(x+1)-eps && hi.X() > float64(x)+eps &&
		lo.Y() < float64(y+1)-eps && hi.Y() > float64(y)+eps
}

func (e *Entity) Alive() bool { return !e.Dead && e.HP > 0 }

// Publish swaps in a fresh View for off-thread readers.
func (e *Entity) Publish(tick uint64) *View {
	v := &View{Tick: tick, Pos: e.Pos, Size: e.Size, Alive: e.Alive()}
	v.Wire = e.Wire()
	e.view.Store(v)
	return v
}

// View returns the last published view, or nil before the first Publish.
func (e *Entity) View() *View { return e.view.Load() }

// Wire builds the protocol state from the live fields.
func (e *Entity) Wire() protocol.EntityState {
	s := protocol.EntityState{
		ID:    uint64(e.ID),
		Kind:  e.Kind.String(),
		X:     round3(e.Pos.X()),
		Y:     round3(e.Pos.Y()),
		VX:    round3(e.Vel.X()),
		VY:    round3(e.Vel.Y()),
		HP:    e.HP,
		MaxHP: e.MaxHP,
		Dead:  e.Dead,
	}
	if int(e.Kind) < len(fillWire) && fillWire[e.Kind] != nil {
		fillWire[e.Kind](e, &s)
	}
	return s
}

var fillWire = [...]func(e *Entity, s *protocol.EntityState){
	KindPlayer: func(e *Entity, s *protocol.EntityState) {
		if e.Player == nil {
			return
		}
		s.Name = e.Player.Name
		s.Class = e.Player.Class
		if e.Player.Inv != nil {
			s.Held = e.Player.Inv.Held().Item
		}
	},
	KindMob: func(e *Entity, s *protocol.EntityState) {
		if e.Mob != nil {
			s.Tag = e.Mob.Tag
		}
	},
	KindItem: func(e *Entity, s *protocol.EntityState) {
		if e.Item != nil {
			s.Tag = e.Item.Stack.Item
			s.Count = e.Item.Stack.Count
		}
	},
	KindProjectile: func(e *Entity, s *protocol.EntityState) {
		s.Tag = "arrow"
	},
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
