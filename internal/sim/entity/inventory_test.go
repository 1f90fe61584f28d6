package entity

import "testing"

func limit99(string) int { return 99 }

func TestInventory_AddMergesThenFills(t *testing.T) {
	inv := NewInventory()
	inv.Slots[3] = Stack{Item: "DIRT", Count: 95}
	left := inv.Add(Stack{Item: "DIRT", Count: 10}, limit99)
	if left != 0 {
		t.Fatalf("left=%d", left)
	}
	if inv.Slots[3].Count != 99 {
		t.Fatalf("merge: slot3=%d", inv.Slots[3].Count)
	}
	if inv.Slots[0].Item != "DIRT" || inv.Slots[0].Count != 6 {
		t.Fatalf("overflow slot: %+v", inv.Slots[0])
	}
	if inv.Count("DIRT") != 105 {
		t.Fatalf("count=%d", inv.Count("DIRT"))
	}
}

func TestInventory_ToolsDoNotStack(t *testing.T) {
	inv := NewInventory()
	tool := Stack{Item: "WOOD_PICKAXE", Count: 1, TotalUses: 60}
	inv.Add(tool, limit99)
	inv.Add(tool, limit99)
	if inv.Slots[0].Count != 1 || inv.Slots[1].Count != 1 {
		t.Fatalf("tools merged: %+v %+v", inv.Slots[0], inv.Slots[1])
	}
}

func TestInventory_FullReturnsLeftover(t *testing.T) {
	inv := NewInventory()
	for i := range inv.Slots {
		inv.Slots[i] = Stack{Item: "STONE", Count: 99}
	}
	if left := inv.Add(Stack{Item: "DIRT", Count: 3}, limit99); left != 3 {
		t.Fatalf("left=%d want 3", left)
	}
	if inv.CanFit(Stack{Item: "STONE", Count: 1}, limit99) {
		t.Fatalf("full inventory reports room")
	}
}

func TestInventory_RemoveAllOrNothing(t *testing.T) {
	inv := NewInventory()
	inv.Slots[0] = Stack{Item: "PLANKS", Count: 2}
	inv.Slots[5] = Stack{Item: "PLANKS", Count: 3}
	if inv.Remove("PLANKS", 6) {
		t.Fatalf("remove more than held should fail")
	}
	if inv.Count("PLANKS") != 5 {
		t.Fatalf("failed remove changed inventory")
	}
	if !inv.Remove("PLANKS", 4) || inv.Count("PLANKS") != 1 {
		t.Fatalf("remove 4: count=%d", inv.Count("PLANKS"))
	}
	if !inv.Slots[0].Empty() {
		t.Fatalf("emptied slot not cleared: %+v", inv.Slots[0])
	}
}

func TestStack_UseTool(t *testing.T) {
	s := Stack{Item: "WOOD_PICKAXE", Count: 1, Uses: 58, TotalUses: 60}
	if s.UseTool() {
		t.Fatalf("tool broke early")
	}
	if s.Uses != 59 {
		t.Fatalf("uses=%d", s.Uses)
	}
	if !s.UseTool() || !s.Empty() {
		t.Fatalf("last use should remove the tool: %+v", s)
	}
	plain := Stack{Item: "DIRT", Count: 3}
	if plain.UseTool() || plain.Count != 3 {
		t.Fatalf("non-tool changed by UseTool")
	}
}

func TestInventory_TakeSlotAndSwap(t *testing.T) {
	inv := NewInventory()
	inv.Slots[2] = Stack{Item: "COAL", Count: 5}
	got, ok := inv.TakeSlot(2, 2)
	if !ok || got.Count != 2 || inv.Slots[2].Count != 3 {
		t.Fatalf("take: got=%+v slot=%+v", got, inv.Slots[2])
	}
	if !inv.Swap(2, 9) || inv.Slots[9].Item != "COAL" || !inv.Slots[2].Empty() {
		t.Fatalf("swap failed")
	}
	if inv.Swap(0, InventorySize) || inv.Select(-1) {
		t.Fatalf("out of range slots accepted")
	}
}
