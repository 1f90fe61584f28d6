package blocks

import (
	"math/rand"

	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

// Actor is the player side of a mutation.
type Actor struct {
	Name   string
	Entity *entity.Entity
	Inv    *entity.Inventory
	Class  catalogs.ClassDef
	// UIBlocked is set while the player has a container open.
	UIBlocked bool
}

// Change is one committed tile write.
type Change struct {
	X, Y int
	Tile uint16
}

// Drop is an item stack to spawn at a tile.
type Drop struct {
	X, Y  int
	Stack entity.Stack
}

// Mutation is the audit record of a committed change.
type Mutation struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor,omitempty"`
	Action string `json:"action"` // BREAK, CASCADE, PLACE, TOGGLE
	X      int    `json:"x"`
	Y      int    `json:"y"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ContainerHooks lets the engine create and spill container state it
// does not own.
type ContainerHooks interface {
	Create(x, y int, kind string)
	Spill(x, y int) []entity.Stack
}

type BiomeFunc func(x, y int) string

type cell struct{ x, y int }

// Engine applies break, place and toggle requests to a tiles.Map. It is
// driven from the tick goroutine only. A cell is committed at most once
// per tick; later requests for it in the same tick are rejected.
type Engine struct {
	Map        tiles.Map
	Cat        *catalogs.Catalogs
	Rand       *rand.Rand
	Biome      BiomeFunc
	Containers ContainerHooks
	Audit      func(Mutation)
	MaxCascade int

	tick      uint64
	committed map[cell]struct{}
	changes   []Change
	deferred  []cell
}

func NewEngine(m tiles.Map, cat *catalogs.Catalogs, seed int64) *Engine {
	return &Engine{
		Map:        m,
		Cat:        cat,
		Rand:       rand.New(rand.NewSource(seed)),
		MaxCascade: 64,
		committed:  map[cell]struct{}{},
	}
}

// BeginTick clears the per-tick commit set and re-checks support for cells
// whose cascade was blocked last tick.
func (e *Engine) BeginTick(tick uint64) []Drop {
	e.tick = tick
	for k := range e.committed {
		delete(e.committed, k)
	}
	if len(e.deferred) == 0 {
		return nil
	}
	pending := e.deferred
	e.deferred = nil
	var drops []Drop
	for _, c := range pending {
		drops = append(drops, e.cascade(nil, []cell{c})...)
	}
	return drops
}

func (e *Engine) Tick() uint64 { return e.tick }

// Committed reports whether (x,y) was already mutated this tick.
func (e *Engine) Committed(x, y int) bool {
	_, ok := e.committed[cell{x, y}]
	return ok
}

// Changes returns tiles committed since the last DrainChanges.
func (e *Engine) Changes() []Change { return e.changes }

func (e *Engine) DrainChanges() []Change {
	out := e.changes
	e.changes = nil
	return out
}

func (e *Engine) commit(actor *Actor, action string, x, y int, to uint16) {
	from := e.Map.Tile(x, y)
	e.Map.SetTile(x, y, to)
	e.committed[cell{x, y}] = struct{}{}
	e.changes = append(e.changes, Change{X: x, Y: y, Tile: to})
	if e.Audit != nil {
		m := Mutation{Tick: e.tick, Action: action, X: x, Y: y, From: e.name(from), To: e.name(to)}
		if actor != nil {
			m.Actor = actor.Name
		}
		e.Audit(m)
	}
}

func (e *Engine) name(t uint16) string {
	if int(t) < len(e.Cat.Blocks.Palette) {
		return e.Cat.Blocks.Palette[t]
	}
	return "?"
}

func (e *Engine) def(x, y int) (uint16, catalogs.BlockDef) {
	t := e.Map.Tile(x, y)
	d, _ := e.Cat.Block(t)
	return t, d
}

// companionOf returns the companion cell of (x,y) if it currently holds the
// expected block.
func (e *Engine) companionOf(x, y int, d catalogs.BlockDef) (cell, bool) {
	if d.Companion == nil {
		return cell{}, false
	}
	c := cell{x + d.Companion.DX, y + d.Companion.DY}
	want, ok := e.Cat.BlockIndex(d.Companion.Block)
	if !ok || !e.Map.InBounds(c.x, c.y) || e.Map.Tile(c.x, c.y) != want {
		return cell{}, false
	}
	return c, true
}

func (e *Engine) stackOf(item string, n int) entity.Stack {
	st := entity.Stack{Item: item, Count: n}
	if it, ok := e.Cat.Item(item); ok && it.Kind == catalogs.KindTool {
		st.TotalUses = it.Uses
	}
	return st
}

// Limit is the stack-size function for inventories.
func (e *Engine) Limit(item string) int {
	it, ok := e.Cat.Item(item)
	if !ok {
		return 1
	}
	return it.StackLimit()
}

// RollDrops rolls a drop table at (x,y) without an actor, e.g. for mob deaths.
func (e *Engine) RollDrops(x, y int, table []catalogs.DropDef) []Drop {
	return e.rollDrops(nil, x, y, table)
}
