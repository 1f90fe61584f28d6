package world

import (
	"sort"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
)

const (
	ChestSlots = 20

	FurnaceInput  = 0
	FurnaceFuel   = 1
	FurnaceOutput = 2
)

type Container struct {
	Kind  string
	X, Y  int
	Slots []entity.Stack

	// Furnace state.
	Progress int
	Burn     int
	Recipe   string

	dirty bool
}

func newContainer(kind string, x, y int) *Container {
	n := ChestSlots
	if kind == catalogs.ContainerFurnace {
		n = 3
	}
	return &Container{Kind: kind, X: x, Y: y, Slots: make([]entity.Stack, n)}
}

type tileKey struct{ X, Y int }

// Containers owns chest and furnace state keyed by tile. It implements
// blocks.ContainerHooks.
type Containers struct {
	byPos map[tileKey]*Container
}

func NewContainers() *Containers {
	return &Containers{byPos: map[tileKey]*Container{}}
}

func (cs *Containers) Get(x, y int) (*Container, bool) {
	c, ok := cs.byPos[tileKey{x, y}]
	return c, ok
}

func (cs *Containers) Create(x, y int, kind string) {
	k := tileKey{x, y}
	if _, ok := cs.byPos[k]; ok {
		return
	}
	cs.byPos[k] = newContainer(kind, x, y)
}

// Spill removes the container and returns its non-empty stacks.
func (cs *Containers) Spill(x, y int) []entity.Stack {
	k := tileKey{x, y}
	c, ok := cs.byPos[k]
	if !ok {
		return nil
	}
	delete(cs.byPos, k)
	var out []entity.Stack
	for _, st := range c.Slots {
		if !st.Empty() {
			out = append(out, st)
		}
	}
	return out
}

// All returns containers ordered by position.
func (cs *Containers) All() []*Container {
	out := make([]*Container, 0, len(cs.byPos))
	for _, c := range cs.byPos {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func (cs *Containers) Len() int { return len(cs.byPos) }

func (cs *Containers) put(c *Container) { cs.byPos[tileKey{c.X, c.Y}] = c }

// Insert adds st to slot i (furnace) or anywhere (chest) and returns the
// count that did not fit.
func (c *Container) Insert(st entity.Stack, slot int, limit entity.LimitFunc) int {
	if st.Empty() {
		return 0
	}
	if c.Kind == catalogs.ContainerChest {
		var inv entity.Inventory
		copy(inv.Slots[:], c.Slots)
		left := inv.Add(st, limit)
		copy(c.Slots, inv.Slots[:len(c.Slots)])
		// Anything placed past the chest size is treated as not fitting.
		for _, extra := range inv.Slots[len(c.Slots):] {
			left += extra.Count
		}
		c.dirty = true
		return left
	}
	if slot != FurnaceInput && slot != FurnaceFuel {
		return st.Count
	}
	cur := &c.Slots[slot]
	if !cur.Empty() && (cur.Item != st.Item || cur.IsTool() || st.IsTool()) {
		return st.Count
	}
	per := 99
	if limit != nil {
		per = limit(st.Item)
	}
	room := per - cur.Count
	if room <= 0 {
		return st.Count
	}
	n := min(room, st.Count)
	if cur.Empty() {
		*cur = st
		cur.Count = n
	} else {
		cur.Count += n
	}
	c.dirty = true
	return st.Count - n
}

// Take removes up to n units from slot i.
func (c *Container) Take(i, n int) (entity.Stack, bool) {
	if i < 0 || i >= len(c.Slots) || c.Slots[i].Empty() || n <= 0 {
		return entity.Stack{}, false
	}
	s := &c.Slots[i]
	out := *s
	if n >= s.Count {
		*s = entity.Stack{}
	} else {
		out.Count = n
		s.Count -= n
	}
	c.dirty = true
	return out, true
}

func (c *Container) message(open bool) protocol.ContainerMsg {
	return protocol.ContainerMsg{
		Type:            protocol.TypeContainer,
		ProtocolVersion: protocol.Version,
		X:               c.X,
		Y:               c.Y,
		Kind:            c.Kind,
		Open:            open,
		Size:            len(c.Slots),
		Slots:           slotObs(c.Slots),
		Progress:        c.Progress,
	}
}

func slotObs(slots []entity.Stack) []protocol.SlotObs {
	out := make([]protocol.SlotObs, 0, len(slots))
	for i, s := range slots {
		if s.Empty() {
			continue
		}
		out = append(out, protocol.SlotObs{
			Slot: i, Item: s.Item, Count: s.Count,
			Uses: s.Uses, TotalUses: s.TotalUses, Bonus: s.Bonus,
		})
	}
	return out
}

// furnaces smelts FURNACE recipes: a unit of fuel burns for its
// fuel_ticks, and input turns into output after the recipe's time_ticks.
type furnaces struct {
	cs      *Containers
	recipes map[string]catalogs.RecipeDef // input item -> recipe
}

func newFurnaces(cs *Containers, cat *catalogs.Catalogs) *furnaces {
	f := &furnaces{cs: cs, recipes: map[string]catalogs.RecipeDef{}}
	ids := make([]string, 0, len(cat.Recipes.ByID))
	for id := range cat.Recipes.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := cat.Recipes.ByID[id]
		if r.Station != catalogs.ContainerFurnace || len(r.Inputs) != 1 || len(r.Outputs) != 1 {
			continue
		}
		if _, dup := f.recipes[r.Inputs[0].Item]; !dup {
			f.recipes[r.Inputs[0].Item] = r
		}
	}
	return f
}

func (f *furnaces) Name() string { return "furnaces" }

func (f *furnaces) Tick(ctx *TickContext) {
	for _, c := range f.cs.byPos {
		if c.Kind != catalogs.ContainerFurnace {
			continue
		}
		f.step(ctx, c)
	}
}

func (f *furnaces) step(ctx *TickContext, c *Container) {
	in := c.Slots[FurnaceInput]
	r, ok := f.recipes[in.Item]
	canSmelt := ok && in.Count >= r.Inputs[0].Count && f.outputFits(ctx, c, r.Outputs[0])

	if c.Burn > 0 {
		c.Burn--
	}
	if !canSmelt {
		if c.Progress != 0 {
			c.Progress = 0
			c.dirty = true
		}
		c.Recipe = ""
		return
	}
	if c.Burn == 0 {
		fuel := c.Slots[FurnaceFuel]
		def, ok := ctx.Cat.Item(fuel.Item)
		if fuel.Empty() || !ok || def.FuelTicks <= 0 {
			return
		}
		c.Slots[FurnaceFuel].Count--
		if c.Slots[FurnaceFuel].Count <= 0 {
			c.Slots[FurnaceFuel] = entity.Stack{}
		}
		c.Burn = def.FuelTicks
		c.dirty = true
	}
	if c.Recipe != r.RecipeID {
		c.Recipe = r.RecipeID
		c.Progress = 0
	}
	c.Progress++
	need := r.TimeTicks
	if need <= 0 {
		need = 1
	}
	if c.Progress%10 == 0 {
		c.dirty = true
	}
	if c.Progress < need {
		return
	}
	c.Progress = 0
	c.Slots[FurnaceInput].Count -= r.Inputs[0].Count
	if c.Slots[FurnaceInput].Count <= 0 {
		c.Slots[FurnaceInput] = entity.Stack{}
	}
	out := &c.Slots[FurnaceOutput]
	if out.Empty() {
		*out = entity.Stack{Item: r.Outputs[0].Item, Count: r.Outputs[0].Count}
	} else {
		out.Count += r.Outputs[0].Count
	}
	c.dirty = true
}

func (f *furnaces) outputFits(ctx *TickContext, c *Container, out catalogs.ItemCount) bool {
	cur := c.Slots[FurnaceOutput]
	if cur.Empty() {
		return true
	}
	if cur.Item != out.Item {
		return false
	}
	limit := 99
	if def, ok := ctx.Cat.Item(out.Item); ok {
		limit = def.StackLimit()
	}
	return cur.Count+out.Count <= limit
}
