package blocks

import (
	"testing"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

func TestPlace_ValidationAndConsume(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "DIRT", 2)
	give(a, cat, 1, "STICK", 5)

	if r := e.Place(a, 10, 5, 0, 1); r.OK || r.Code != protocol.ErrInvalidTarget {
		t.Fatalf("floating placement accepted: %+v", r)
	}
	if r := e.Place(a, 10, ground-1, 1, 1); r.OK || r.Code != protocol.ErrInvalidTarget {
		t.Fatalf("non-block item placed: %+v", r)
	}
	if r := e.Place(a, 10, ground, 0, 1); r.OK || r.Code != protocol.ErrBlocked || r.Tile != id(t, cat, "STONE") {
		t.Fatalf("occupied target: %+v", r)
	}
	if r := e.Place(a, 0, ground-1, 0, 1); r.OK {
		t.Fatalf("placed a solid tile inside the player")
	}
	if r := e.Place(a, -1, ground-1, 0, 1); r.OK {
		t.Fatalf("placed out of bounds")
	}
	r := e.Place(a, 10, ground-1, 0, 1)
	if !r.OK || !r.Consumed || g.Tile(10, ground-1) != id(t, cat, "DIRT") {
		t.Fatalf("place: %+v", r)
	}
	if a.Inv.Slots[0].Count != 1 {
		t.Fatalf("count=%d want 1", a.Inv.Slots[0].Count)
	}
	e.BeginTick(2)
	e.Place(a, 11, ground-1, 0, 2)
	if !a.Inv.Slots[0].Empty() {
		t.Fatalf("last unit not cleared: %+v", a.Inv.Slots[0])
	}
	if r := e.Place(a, 12, ground-1, 0, 2); r.OK || r.Code != protocol.ErrNoResource {
		t.Fatalf("empty slot: %+v", r)
	}
}

func TestPlace_SameCellSameTick(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	b := newActor(cat, "ADVENTURER")
	b.Name = "bob"
	give(a, cat, 0, "DIRT", 5)
	give(b, cat, 0, "STONE", 5)

	first := e.Place(a, 14, ground-1, 0, 1)
	second := e.Place(b, 14, ground-1, 0, 1)
	if !first.OK || second.OK {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	if second.Tile != id(t, cat, "DIRT") || g.Tile(14, ground-1) != id(t, cat, "DIRT") {
		t.Fatalf("loser correction should carry the winner's tile: %+v", second)
	}
	if b.Inv.Slots[0].Count != 5 {
		t.Fatalf("loser consumed an item")
	}
}

func TestPlace_DoorCompanionAndRollback(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "DOOR", 2)

	r := e.Place(a, 6, ground-1, 0, 1)
	if !r.OK || len(r.Changes) != 2 {
		t.Fatalf("door: %+v", r)
	}
	if g.Tile(6, ground-2) != id(t, cat, "DOOR_TOP") {
		t.Fatalf("door top missing")
	}

	// Companion cell blocked: nothing placed, item refunded.
	g.SetTile(8, ground-2, id(t, cat, "STONE"))
	r = e.Place(a, 8, ground-1, 0, 1)
	if r.OK || r.Code != protocol.ErrBlocked {
		t.Fatalf("blocked companion accepted: %+v", r)
	}
	if g.Tile(8, ground-1) != tiles.Air {
		t.Fatalf("primary not rolled back")
	}
	if a.Inv.Slots[0].Count != 1 {
		t.Fatalf("refund: count=%d want 1", a.Inv.Slots[0].Count)
	}
	if e.Committed(8, ground-1) {
		t.Fatalf("rolled back cell left committed")
	}

	// Breaking the top half removes both.
	e.BeginTick(2)
	st := BreakingState{X: 6, Y: ground - 2, Ticks: 1000}
	br := e.Break(a, &st, 6, ground-2, 2)
	if br.Status != BreakCompleted || g.Tile(6, ground-1) != tiles.Air {
		t.Fatalf("companion survived: %+v", br)
	}
	doors := 0
	for _, d := range br.Drops {
		if d.Stack.Item == "DOOR" {
			doors += d.Stack.Count
		}
	}
	if doors != 1 {
		t.Fatalf("door drops=%d want 1", doors)
	}
}

func TestPlace_BedCompanionOutOfBounds(t *testing.T) {
	e, _, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "BED", 1)
	if r := e.Place(a, 31, ground-1, 0, 1); r.OK {
		t.Fatalf("bed right half outside the world accepted")
	}
	if a.Inv.Slots[0].Count != 1 {
		t.Fatalf("bed not refunded")
	}
	if r := e.Place(a, 29, ground-1, 0, 1); !r.OK || r.Changes[1].X != 30 {
		t.Fatalf("bed: %+v", r)
	}
}

func TestPlace_ClassGate(t *testing.T) {
	e, _, cat := newTestEngine(t)
	a := newActor(cat, "MINER")
	give(a, cat, 0, "SPIKE_TRAP", 1)
	if r := e.Place(a, 12, ground-1, 0, 1); r.OK {
		t.Fatalf("miner placed a trap")
	}
	b := newActor(cat, "BUILDER")
	give(b, cat, 0, "SPIKE_TRAP", 1)
	if r := e.Place(b, 12, ground-1, 0, 1); !r.OK {
		t.Fatalf("builder could not place trap: %+v", r)
	}
}

type fakeContainers struct {
	created map[[2]int]string
	spill   []entity.Stack
}

func (f *fakeContainers) Create(x, y int, kind string) { f.created[[2]int{x, y}] = kind }
func (f *fakeContainers) Spill(x, y int) []entity.Stack {
	out := f.spill
	f.spill = nil
	return out
}

func TestPlace_ContainerLifecycle(t *testing.T) {
	e, _, cat := newTestEngine(t)
	fc := &fakeContainers{created: map[[2]int]string{}}
	e.Containers = fc
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "CHEST", 1)
	if r := e.Place(a, 5, ground-1, 0, 1); !r.OK {
		t.Fatalf("place chest: %+v", r)
	}
	if fc.created[[2]int{5, ground - 1}] != "CHEST" {
		t.Fatalf("container not created: %+v", fc.created)
	}
	fc.spill = []entity.Stack{{Item: "COAL", Count: 7}}
	e.BeginTick(2)
	st := BreakingState{X: 5, Y: ground - 1, Ticks: 1000}
	r := e.Break(a, &st, 5, ground-1, 2)
	var coal int
	for _, d := range r.Drops {
		if d.Stack.Item == "COAL" {
			coal += d.Stack.Count
		}
	}
	if coal != 7 {
		t.Fatalf("spilled coal=%d", coal)
	}
}

func TestToggle_Door(t *testing.T) {
	e, g, cat := newTestEngine(t)
	a := newActor(cat, "ADVENTURER")
	give(a, cat, 0, "DOOR", 1)
	e.Place(a, 6, ground-1, 0, 1)

	e.BeginTick(2)
	ch, ok := e.Toggle(a, 6, ground-1, 2)
	if !ok || len(ch) != 2 {
		t.Fatalf("toggle: ok=%v ch=%+v", ok, ch)
	}
	if g.Tile(6, ground-1) != id(t, cat, "DOOR_BOTTOM_OPEN") || g.Tile(6, ground-2) != id(t, cat, "DOOR_TOP_OPEN") {
		t.Fatalf("door halves not both opened")
	}
	if _, ok := e.Toggle(a, 6, ground-2, 2); ok {
		t.Fatalf("second toggle in the same tick accepted")
	}
	e.BeginTick(3)
	if _, ok := e.Toggle(a, 6, ground-2, 3); !ok {
		t.Fatalf("close from top half failed")
	}
	if g.Tile(6, ground-1) != id(t, cat, "DOOR_BOTTOM") {
		t.Fatalf("door not closed")
	}
}
