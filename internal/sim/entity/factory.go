package entity

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/sim/catalogs"
)

// Factory builds an entity of one tag. It must not touch the registry.
type Factory func(id ID, pos mgl64.Vec2) *Entity

// Factories maps spawn tags to constructors so spawn rules can refer to
// entity types by name.
type Factories struct {
	mu    sync.RWMutex
	byTag map[string]Factory
}

func NewFactories() *Factories {
	return &Factories{byTag: map[string]Factory{}}
}

func (f *Factories) Register(tag string, fn Factory) {
	f.mu.Lock()
	f.byTag[tag] = fn
	f.mu.Unlock()
}

func (f *Factories) Lookup(tag string) (Factory, bool) {
	f.mu.RLock()
	fn, ok := f.byTag[tag]
	f.mu.RUnlock()
	return fn, ok
}

func (f *Factories) Tags() []string {
	f.mu.RLock()
	out := make([]string, 0, len(f.byTag))
	for t := range f.byTag {
		out = append(out, t)
	}
	f.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Spawn builds tag at pos with a fresh id and adds it to r.
func (f *Factories) Spawn(r *Registry, tag string, pos mgl64.Vec2) (*Entity, bool) {
	fn, ok := f.Lookup(tag)
	if !ok {
		return nil, false
	}
	e := fn(r.NextID(), pos)
	if e == nil || !r.Add(e) {
		return nil, false
	}
	return e, true
}

const (
	TagItem  = "item"
	TagArrow = "arrow"
)

// DefaultFactories registers item, arrow and one factory per catalog mob.
func DefaultFactories(cat *catalogs.Catalogs) *Factories {
	f := NewFactories()
	f.Register(TagItem, func(id ID, pos mgl64.Vec2) *Entity {
		return &Entity{
			ID: id, Kind: KindItem, Pos: pos,
			Size: mgl64.Vec2{0.5, 0.5},
			HP:   1, MaxHP: 1,
			Item: &Item{},
		}
	})
	f.Register(TagArrow, func(id ID, pos mgl64.Vec2) *Entity {
		return &Entity{
			ID: id, Kind: KindProjectile, Pos: pos,
			Size:       mgl64.Vec2{0.4, 0.2},
			HP:         1, MaxHP: 1,
			Projectile: &Projectile{},
		}
	})
	if cat == nil {
		return f
	}
	for tag, def := range cat.Mobs.ByID {
		def := def
		f.Register(tag, func(id ID, pos mgl64.Vec2) *Entity {
			size := mgl64.Vec2{def.Size[0], def.Size[1]}
			if size.X() <= 0 || size.Y() <= 0 {
				size = mgl64.Vec2{0.9, 0.9}
			}
			return &Entity{
				ID: id, Kind: KindMob, Pos: pos, Size: size,
				HP: def.HP, MaxHP: def.HP,
				Mob: &Mob{Tag: def.ID, Damage: def.Damage, Speed: def.Speed, JumpVel: def.Jump, Dir: 1},
			}
		})
	}
	return f
}

// NewPlayer builds a player entity; the caller assigns the id.
func NewPlayer(id ID, name, class string, pos mgl64.Vec2, maxHP int) *Entity {
	return &Entity{
		ID: id, Kind: KindPlayer, Pos: pos,
		Size: mgl64.Vec2{0.75, 1.75},
		HP:   maxHP, MaxHP: maxHP,
		Player: &Player{Name: name, Class: class, Inv: NewInventory()},
	}
}
