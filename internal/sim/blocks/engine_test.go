package blocks

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

const ground = 20

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cat, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cat
}

func id(t *testing.T, cat *catalogs.Catalogs, name string) uint16 {
	t.Helper()
	v, ok := cat.BlockIndex(name)
	if !ok {
		t.Fatalf("unknown block %s", name)
	}
	return v
}

func newTestEngine(t *testing.T) (*Engine, *tiles.Grid, *catalogs.Catalogs) {
	t.Helper()
	cat := loadCatalogs(t)
	g := tiles.NewGrid(32, 32)
	stone := id(t, cat, "STONE")
	for x := 0; x < 32; x++ {
		g.SetTile(x, ground, stone)
	}
	e := NewEngine(g, cat, 1)
	e.BeginTick(1)
	return e, g, cat
}

func newActor(cat *catalogs.Catalogs, class string) *Actor {
	p := entity.NewPlayer(1, "alice", class, mgl64.Vec2{0, ground - 1.75}, 100)
	return &Actor{Name: "alice", Entity: p, Inv: p.Player.Inv, Class: cat.Class(class)}
}

func give(a *Actor, cat *catalogs.Catalogs, slot int, item string, n int) {
	st := entity.Stack{Item: item, Count: n}
	if it, ok := cat.Item(item); ok && it.Kind == catalogs.KindTool {
		st.TotalUses = it.Uses
	}
	a.Inv.Slots[slot] = st
}

func TestRequiredTicks(t *testing.T) {
	cat := loadCatalogs(t)
	dirt := cat.Blocks.Defs["DIRT"]
	shovel, _ := cat.Item("WOOD_SHOVEL")
	pick, _ := cat.Item("WOOD_PICKAXE")
	adv := cat.Class("ADVENTURER")
	miner := cat.Class("MINER")

	if n := RequiredTicks(dirt, catalogs.ItemDef{}, adv); n != 30 {
		t.Fatalf("bare hands: %d want 30", n)
	}
	if n := RequiredTicks(dirt, shovel, adv); n != 15 {
		t.Fatalf("shovel: %d want 15", n)
	}
	if n := RequiredTicks(dirt, pick, adv); n != 30 {
		t.Fatalf("wrong tool class should not help: %d", n)
	}
	if n := RequiredTicks(dirt, shovel, miner); n != 11 {
		t.Fatalf("miner with shovel: %d want round(11.25)=11", n)
	}
	torch := cat.Blocks.Defs["TORCH"]
	if n := RequiredTicks(torch, pick, miner); n != 1 {
		t.Fatalf("minimum is one tick: %d", n)
	}
}

func TestBreak_ProgressResetAndCompleteOnce(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "WOOD_SHOVEL", 1)
	g.SetTile(10, ground-1, id(t, cat, "DIRT"))
	g.SetTile(12, ground-1, id(t, cat, "DIRT"))
	st := NewBreakingState()

	r := e.Break(a, &st, 10, ground-1, 1)
	if r.Status != BreakProgress || r.Ticks != 1 || r.Required != 15 {
		t.Fatalf("first: %+v", r)
	}
	// A second request in the same tick does not advance.
	r = e.Break(a, &st, 10, ground-1, 1)
	if r.Ticks != 1 {
		t.Fatalf("same tick advanced: %d", r.Ticks)
	}
	for tick := uint64(2); tick <= 5; tick++ {
		e.BeginTick(tick)
		r = e.Break(a, &st, 10, ground-1, tick)
	}
	if r.Ticks != 5 {
		t.Fatalf("after 5 ticks: %d", r.Ticks)
	}
	e.BeginTick(6)
	r = e.Break(a, &st, 12, ground-1, 6)
	if r.Ticks != 1 || st.X != 12 {
		t.Fatalf("target switch should restart at 1: %+v st=%+v", r, st)
	}

	completions := 0
	for tick := uint64(7); tick < 40; tick++ {
		e.BeginTick(tick)
		r = e.Break(a, &st, 12, ground-1, tick)
		if r.Status == BreakCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("completions=%d want 1", completions)
	}
	if g.Tile(12, ground-1) != tiles.Air {
		t.Fatalf("tile not removed")
	}
	if g.Tile(10, ground-1) == tiles.Air {
		t.Fatalf("abandoned target removed")
	}
	if st.Active() {
		t.Fatalf("state not reset after completion: %+v", st)
	}
}

func TestBreak_RejectsWeaponsAndAir(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "WOOD_SWORD", 1)
	g.SetTile(3, ground-1, id(t, cat, "DIRT"))
	st := NewBreakingState()

	r := e.Break(a, &st, 3, ground-1, 1)
	if r.Status != BreakRejected || r.Code != protocol.ErrInvalidTarget || r.Tile != id(t, cat, "DIRT") {
		t.Fatalf("sword: %+v", r)
	}
	a.Inv.Slots[0] = entity.Stack{}
	r = e.Break(a, &st, 4, ground-1, 1)
	if r.Status != BreakRejected || r.Tile != tiles.Air {
		t.Fatalf("air: %+v", r)
	}
	a.UIBlocked = true
	r = e.Break(a, &st, 3, ground-1, 1)
	if r.Status != BreakRejected || r.Code != protocol.ErrBlocked {
		t.Fatalf("ui blocked: %+v", r)
	}
	if bedrock := id(t, cat, "BEDROCK"); bedrock != 0 {
		g.SetTile(6, ground-1, bedrock)
		a.UIBlocked = false
		if r := e.Break(a, &st, 6, ground-1, 1); r.Status != BreakRejected {
			t.Fatalf("bedrock breakable: %+v", r)
		}
	}
}

func TestBreak_DurabilityLastUse(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "WOOD_PICKAXE", 1)
	a.Inv.Slots[0].Uses = a.Inv.Slots[0].TotalUses - 2
	torch := id(t, cat, "TORCH")
	g.SetTile(8, ground-1, torch)
	g.SetTile(9, ground-1, torch)
	st := NewBreakingState()

	r := e.Break(a, &st, 8, ground-1, 1)
	if r.Status != BreakCompleted || r.ToolBroken {
		t.Fatalf("first break: %+v", r)
	}
	if a.Inv.Slots[0].Uses != a.Inv.Slots[0].TotalUses-1 {
		t.Fatalf("uses=%d", a.Inv.Slots[0].Uses)
	}
	e.BeginTick(2)
	r = e.Break(a, &st, 9, ground-1, 2)
	if r.Status != BreakCompleted || !r.ToolBroken {
		t.Fatalf("last break should break the tool: %+v", r)
	}
	if !a.Inv.Slots[0].Empty() {
		t.Fatalf("tool still in inventory: %+v", a.Inv.Slots[0])
	}
}

func TestBreak_DropsAndCascade(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	dirt := id(t, cat, "DIRT")
	logID := id(t, cat, "LOG")
	g.SetTile(15, ground-1, dirt)
	for y := ground - 2; y >= ground-4; y-- {
		g.SetTile(15, y, logID)
	}
	g.SetTile(15, ground-5, id(t, cat, "LEAVES"))

	var audits []Mutation
	e.Audit = func(m Mutation) { audits = append(audits, m) }
	st := BreakingState{X: 15, Y: ground - 1, Ticks: 29, LastTick: 0}
	r := e.Break(a, &st, 15, ground-1, 1)
	if r.Status != BreakCompleted {
		t.Fatalf("status=%v", r.Status)
	}
	for y := ground - 1; y >= ground-5; y-- {
		if g.Tile(15, y) != tiles.Air {
			t.Fatalf("y=%d not cleared: %d", y, g.Tile(15, y))
		}
	}
	if len(r.Removed) != 5 {
		t.Fatalf("removed=%d want 5", len(r.Removed))
	}
	logs := 0
	for _, d := range r.Drops {
		if d.Stack.Item == "LOG" {
			logs += d.Stack.Count
		}
	}
	if logs != 3 {
		t.Fatalf("log drops=%d want 3", logs)
	}
	if len(audits) != 5 || audits[0].Action != "BREAK" || audits[1].Action != "CASCADE" {
		t.Fatalf("audits=%+v", audits)
	}
	if len(e.DrainChanges()) != 5 || len(e.Changes()) != 0 {
		t.Fatalf("changes not drained")
	}
}

func TestBreak_CascadeBounded(t *testing.T) {
	e, g, cat := newTestEngine(t)
	e.MaxCascade = 2
	a := newActor(cat, "ADVENTURER")
	logID := id(t, cat, "LOG")
	for y := ground - 1; y >= ground-6; y-- {
		g.SetTile(20, y, logID)
	}
	st := BreakingState{X: 20, Y: ground - 1, Ticks: 1000, LastTick: 0}
	e.Break(a, &st, 20, ground-1, 1)
	if g.Tile(20, ground-4) != logID {
		t.Fatalf("cascade went past its bound")
	}
	if g.Tile(20, ground-3) != tiles.Air {
		t.Fatalf("cascade stopped early")
	}
}

func TestBreak_CascadeDeferredWhenAboveCommitted(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	g.SetTile(25, ground-1, id(t, cat, "DIRT"))
	give(a, cat, 0, "TORCH", 5)
	if r := e.Place(a, 25, ground-2, 0, 1); !r.OK {
		t.Fatalf("place torch: %+v", r)
	}
	st := BreakingState{X: 25, Y: ground - 1, Ticks: 100, LastTick: 0}
	if r := e.Break(a, &st, 25, ground-1, 1); r.Status != BreakCompleted {
		t.Fatalf("break: %+v", r)
	}
	if g.Tile(25, ground-2) != id(t, cat, "TORCH") {
		t.Fatalf("torch mutated twice in one tick")
	}
	drops := e.BeginTick(2)
	if g.Tile(25, ground-2) != tiles.Air {
		t.Fatalf("deferred cascade did not run")
	}
	if len(drops) != 1 || drops[0].Stack.Item != "TORCH" {
		t.Fatalf("drops=%+v", drops)
	}
}

func TestExpired(t *testing.T) {
	st := BreakingState{X: 4, Y: 5, Ticks: 7, LastTick: 100}
	if Expired(&st, 160, 60) {
		t.Fatalf("expired at exactly the timeout")
	}
	if !Expired(&st, 161, 60) {
		t.Fatalf("not expired after timeout")
	}
	if st != (BreakingState{X: -1, Y: -1}) {
		t.Fatalf("state=%+v want {-1,-1,0}", st)
	}
	if Expired(&st, 500, 60) {
		t.Fatalf("inactive state expired twice")
	}
}
