package blocks

import (
	"math"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/tiles"
)

// BreakingState tracks one player's in-progress break.
type BreakingState struct {
	X, Y     int
	Ticks    int
	LastTick uint64
}

func NewBreakingState() BreakingState { return BreakingState{X: -1, Y: -1} }

func (s *BreakingState) Reset() { *s = BreakingState{X: -1, Y: -1} }

func (s BreakingState) Active() bool { return s.Ticks > 0 && s.X >= 0 && s.Y >= 0 }

type BreakStatus int

const (
	BreakRejected BreakStatus = iota
	BreakProgress
	BreakCompleted
)

type BreakResult struct {
	Status   BreakStatus
	Code     string
	X, Y     int
	Tile     uint16
	Ticks    int
	Required int

	Drops      []Drop
	Removed    []Change
	ToolBroken bool
}

// RequiredTicks is max(1, round(hardness * tool * class)).
func RequiredTicks(b catalogs.BlockDef, held catalogs.ItemDef, class catalogs.ClassDef) int {
	mult := 1.0
	if held.Kind == catalogs.KindTool && b.ToolClass != "" && held.ToolClass == b.ToolClass && held.ToolSpeed > 0 {
		mult = held.ToolSpeed
	}
	speed := class.BreakSpeed
	if speed <= 0 {
		speed = 1
	}
	n := int(math.Round(b.Hardness * mult * speed))
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Engine) reject(x, y int, code string) BreakResult {
	return BreakResult{Status: BreakRejected, Code: code, X: x, Y: y, Tile: e.Map.Tile(x, y)}
}

// Break advances st toward breaking (x,y). Progress moves at most once per
// tick; switching targets restarts at one tick of progress.
func (e *Engine) Break(a *Actor, st *BreakingState, x, y int, tick uint64) BreakResult {
	if a.UIBlocked {
		return e.reject(x, y, protocol.ErrBlocked)
	}
	held := a.Inv.Held()
	heldDef, _ := e.Cat.Item(held.Item)
	if heldDef.Kind == catalogs.KindTool && (heldDef.ToolClass == catalogs.ToolSword || heldDef.ToolClass == catalogs.ToolBow) {
		return e.reject(x, y, protocol.ErrInvalidTarget)
	}
	if !e.Map.InBounds(x, y) {
		return e.reject(x, y, protocol.ErrInvalidTarget)
	}
	t, d := e.def(x, y)
	if t == tiles.Air || !d.Breakable {
		return e.reject(x, y, protocol.ErrInvalidTarget)
	}
	if e.Committed(x, y) {
		return e.reject(x, y, protocol.ErrBlocked)
	}

	required := RequiredTicks(d, heldDef, a.Class)
	switch {
	case st.Active() && st.X == x && st.Y == y:
		if st.LastTick != tick {
			st.Ticks++
		}
	default:
		*st = BreakingState{X: x, Y: y, Ticks: 1}
	}
	st.LastTick = tick

	res := BreakResult{Status: BreakProgress, X: x, Y: y, Tile: t, Ticks: st.Ticks, Required: required}
	if st.Ticks < required {
		return res
	}

	res.Status = BreakCompleted
	res.Ticks = required
	st.Reset()

	mark := len(e.changes)
	removed, drops := e.destroy(a, "BREAK", x, y, d)
	res.Drops = drops
	if held.IsTool() {
		res.ToolBroken = held.UseTool()
	}
	res.Drops = append(res.Drops, e.cascade(a, cellsOf(removed))...)
	res.Removed = append([]Change(nil), e.changes[mark:]...)
	res.Tile = e.Map.Tile(x, y)
	return res
}

// Expired resets st when it has not advanced for more than timeout ticks.
func Expired(st *BreakingState, tick uint64, timeout int) bool {
	if !st.Active() {
		return false
	}
	if tick <= st.LastTick || tick-st.LastTick <= uint64(timeout) {
		return false
	}
	st.Reset()
	return true
}

// destroy removes (x,y) and its companion, rolls drops and spills containers.
func (e *Engine) destroy(a *Actor, action string, x, y int, d catalogs.BlockDef) ([]Change, []Drop) {
	var removed []Change
	comp, hasComp := e.companionOf(x, y, d)

	e.commit(a, action, x, y, tiles.Air)
	removed = append(removed, Change{X: x, Y: y, Tile: tiles.Air})
	if hasComp && !e.Committed(comp.x, comp.y) {
		e.commit(a, action, comp.x, comp.y, tiles.Air)
		removed = append(removed, Change{X: comp.x, Y: comp.y, Tile: tiles.Air})
	}

	drops := e.rollDrops(a, x, y, d.Drops)
	if d.Container != "" && e.Containers != nil {
		for _, st := range e.Containers.Spill(x, y) {
			drops = append(drops, Drop{X: x, Y: y, Stack: st})
		}
	}
	return removed, drops
}

func (e *Engine) rollDrops(a *Actor, x, y int, table []catalogs.DropDef) []Drop {
	var out []Drop
	biome := ""
	if e.Biome != nil {
		biome = e.Biome(x, y)
	}
	for _, dd := range table {
		chance := dd.ChancePermille + dd.BiomeBonus[biome]
		if e.Rand.Intn(1000) >= chance {
			continue
		}
		n := dd.Min
		if dd.Max > dd.Min {
			n += e.Rand.Intn(dd.Max - dd.Min + 1)
		}
		if a != nil && a.Class.ExtraDropPermille > 0 && e.Rand.Intn(1000) < a.Class.ExtraDropPermille {
			n++
		}
		if n <= 0 {
			continue
		}
		out = append(out, Drop{X: x, Y: y, Stack: e.stackOf(dd.Item, n)})
	}
	return out
}

// cascade breaks unsupported tiles above each emptied cell, bounded by
// MaxCascade. Cells already committed this tick are retried next tick.
func (e *Engine) cascade(a *Actor, from []cell) []Drop {
	var drops []Drop
	queue := append([]cell(nil), from...)
	limit := e.MaxCascade
	if limit <= 0 {
		limit = 64
	}
	n := 0
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if e.Map.Tile(c.x, c.y) != tiles.Air {
			continue
		}
		ax, ay := c.x, c.y-1
		if !e.Map.InBounds(ax, ay) {
			continue
		}
		t, d := e.def(ax, ay)
		if t == tiles.Air || !d.RequiresSupport {
			continue
		}
		if e.Committed(ax, ay) {
			e.deferred = append(e.deferred, c)
			continue
		}
		if n >= limit {
			break
		}
		n++
		removed, more := e.destroy(a, "CASCADE", ax, ay, d)
		drops = append(drops, more...)
		queue = append(queue, cellsOf(removed)...)
	}
	return drops
}

func cellsOf(cs []Change) []cell {
	out := make([]cell, 0, len(cs))
	for _, c := range cs {
		out = append(out, cell{c.X, c.Y})
	}
	return out
}
