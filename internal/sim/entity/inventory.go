package entity

const InventorySize = 40

type Stack struct {
	Item      string `json:"item,omitempty" msgpack:"i,omitempty"`
	Count     int    `json:"count,omitempty" msgpack:"c,omitempty"`
	Uses      int    `json:"uses,omitempty" msgpack:"u,omitempty"`
	TotalUses int    `json:"total_uses,omitempty" msgpack:"t,omitempty"`
	Bonus     bool   `json:"bonus,omitempty" msgpack:"b,omitempty"`
}

func (s Stack) Empty() bool { return s.Item == "" || s.Count <= 0 }

func (s Stack) IsTool() bool { return s.TotalUses > 0 }

// UseTool charges one use and clears the stack on the last one.
func (s *Stack) UseTool() (broken bool) {
	if !s.IsTool() || s.Empty() {
		return false
	}
	s.Uses++
	if s.Uses >= s.TotalUses {
		*s = Stack{}
		return true
	}
	return false
}

// LimitFunc returns the max stack size for an item.
type LimitFunc func(item string) int

type Inventory struct {
	Slots    [InventorySize]Stack `msgpack:"s"`
	Selected int                  `msgpack:"sel"`
}

func NewInventory() *Inventory { return &Inventory{} }

func validSlot(i int) bool { return i >= 0 && i < InventorySize }

// Held returns the selected slot; callers may mutate it in place.
func (inv *Inventory) Held() *Stack {
	if !validSlot(inv.Selected) {
		inv.Selected = 0
	}
	return &inv.Slots[inv.Selected]
}

func (inv *Inventory) Slot(i int) (*Stack, bool) {
	if !validSlot(i) {
		return nil, false
	}
	return &inv.Slots[i], true
}

func (inv *Inventory) Select(i int) bool {
	if !validSlot(i) {
		return false
	}
	inv.Selected = i
	return true
}

func (inv *Inventory) Swap(a, b int) bool {
	if !validSlot(a) || !validSlot(b) {
		return false
	}
	inv.Slots[a], inv.Slots[b] = inv.Slots[b], inv.Slots[a]
	return true
}

// Add merges st into existing stacks first, then empty slots, and returns
// the count that did not fit. Tools never merge.
func (inv *Inventory) Add(st Stack, limit LimitFunc) int {
	if st.Empty() {
		return 0
	}
	per := 1
	if !st.IsTool() && limit != nil {
		per = limit(st.Item)
	}
	if per < 1 {
		per = 1
	}
	left := st.Count
	if !st.IsTool() {
		for i := range inv.Slots {
			s := &inv.Slots[i]
			if left == 0 {
				break
			}
			if s.Item != st.Item || s.IsTool() || s.Count >= per {
				continue
			}
			n := min(per-s.Count, left)
			s.Count += n
			left -= n
		}
	}
	for i := range inv.Slots {
		if left == 0 {
			break
		}
		s := &inv.Slots[i]
		if !s.Empty() {
			continue
		}
		n := min(per, left)
		*s = st
		s.Count = n
		left -= n
	}
	return left
}

// CanFit reports whether Add would place every unit.
func (inv *Inventory) CanFit(st Stack, limit LimitFunc) bool {
	cp := *inv
	return cp.Add(st, limit) == 0
}

func (inv *Inventory) Count(item string) int {
	n := 0
	for _, s := range inv.Slots {
		if s.Item == item {
			n += s.Count
		}
	}
	return n
}

// Remove takes n units of item across slots, all or nothing.
func (inv *Inventory) Remove(item string, n int) bool {
	if n <= 0 {
		return true
	}
	if inv.Count(item) < n {
		return false
	}
	for i := range inv.Slots {
		s := &inv.Slots[i]
		if s.Item != item {
			continue
		}
		k := min(s.Count, n)
		s.Count -= k
		n -= k
		if s.Count == 0 {
			*s = Stack{}
		}
		if n == 0 {
			break
		}
	}
	return true
}

// TakeSlot splits up to n units off slot i.
func (inv *Inventory) TakeSlot(i, n int) (Stack, bool) {
	s, ok := inv.Slot(i)
	if !ok || s.Empty() || n <= 0 {
		return Stack{}, false
	}
	out := *s
	if n >= s.Count {
		*s = Stack{}
		return out, true
	}
	out.Count = n
	s.Count -= n
	return out, true
}

// Clear empties every slot and returns what was held.
func (inv *Inventory) Clear() []Stack {
	var out []Stack
	for i := range inv.Slots {
		if !inv.Slots[i].Empty() {
			out = append(out, inv.Slots[i])
		}
		inv.Slots[i] = Stack{}
	}
	return out
}
