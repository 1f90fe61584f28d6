package entity

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestRegistry_AddRemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	e := &Entity{ID: r.NextID(), Kind: KindMob, Mob: &Mob{Tag: "slime"}}
	if !r.Add(e) {
		t.Fatalf("first Add should succeed")
	}
	if r.Add(e) {
		t.Fatalf("duplicate Add should be a no-op")
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d want 1", r.Len())
	}
	if !r.Remove(e) {
		t.Fatalf("first Remove should succeed")
	}
	if r.Remove(e) || r.RemoveByID(e.ID) {
		t.Fatalf("second removal should report false")
	}
	if r.Contains(e.ID) {
		t.Fatalf("entity still present")
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	a := &Entity{ID: r.NextID(), Kind: KindItem, Item: &Item{}}
	b := &Entity{ID: r.NextID(), Kind: KindItem, Item: &Item{}}
	r.Add(a)
	snap := r.Snapshot()
	r.Add(b)
	r.Remove(a)

	if snap.Len() != 1 {
		t.Fatalf("old snapshot len=%d want 1", snap.Len())
	}
	if _, ok := snap.Get(a.ID); !ok {
		t.Fatalf("old snapshot lost a")
	}
	now := r.Snapshot()
	if now.Len() != 1 {
		t.Fatalf("new snapshot len=%d want 1", now.Len())
	}
	if _, ok := now.Get(b.ID); !ok {
		t.Fatalf("new snapshot missing b")
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	r := NewRegistry()
	seen := map[ID]bool{}
	for i := 0; i < 100; i++ {
		id := r.NextID()
		if seen[id] {
			t.Fatalf("id %d reused", id)
		}
		seen[id] = true
		e := &Entity{ID: id, Kind: KindItem, Item: &Item{}}
		r.Add(e)
		r.Remove(e)
	}
	r.ReserveIDs(500)
	if id := r.NextID(); id <= 500 {
		t.Fatalf("id after reserve=%d", id)
	}
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := 0
				r.Snapshot().Each(func(e *Entity) bool {
					n++
					return true
				})
				_ = n
			}
		}()
	}
	for i := 0; i < 500; i++ {
		e := &Entity{ID: r.NextID(), Kind: KindItem, Item: &Item{}}
		r.Add(e)
		if i%2 == 0 {
			r.Remove(e)
		}
	}
	close(stop)
	wg.Wait()
	if r.Len() != 250 {
		t.Fatalf("len=%d want 250", r.Len())
	}
}

func TestFactories_Spawn(t *testing.T) {
	r := NewRegistry()
	f := DefaultFactories(nil)
	e, ok := f.Spawn(r, TagItem, mgl64.Vec2{3, 4})
	if !ok || e.Kind != KindItem || e.Item == nil {
		t.Fatalf("spawn item: ok=%v e=%+v", ok, e)
	}
	if _, ok := f.Spawn(r, "dragon", mgl64.Vec2{}); ok {
		t.Fatalf("unknown tag should not spawn")
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d", r.Len())
	}
}

func TestPublish_ViewAndWire(t *testing.T) {
	e := NewPlayer(7, "alice", "MINER", mgl64.Vec2{1.23456, 2}, 100)
	e.Player.Inv.Slots[0] = Stack{Item: "WOOD_PICKAXE", Count: 1, TotalUses: 60}
	if e.View() != nil {
		t.Fatalf("view before publish")
	}
	v := e.Publish(9)
	if v.Tick != 9 || e.View() != v {
		t.Fatalf("publish did not store view")
	}
	w := v.Wire
	if w.Kind != "PLAYER" || w.Name != "alice" || w.Class != "MINER" || w.Held != "WOOD_PICKAXE" {
		t.Fatalf("wire=%+v", w)
	}
	if w.X != 1.235 {
		t.Fatalf("x=%v want 1.235", w.X)
	}
}

func TestOverlapsTile(t *testing.T) {
	e := &Entity{Pos: mgl64.Vec2{2, 3}, Size: mgl64.Vec2{0.75, 1.75}}
	if !e.OverlapsTile(2, 3) || !e.OverlapsTile(2, 4) {
		t.Fatalf("should overlap own tiles")
	}
	if e.OverlapsTile(3, 3) || e.OverlapsTile(2, 5) || e.OverlapsTile(2, 2) {
		t.Fatalf("should not overlap neighbours")
	}
}
