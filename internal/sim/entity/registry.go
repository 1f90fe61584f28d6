package entity

import (
	"sync"
	"sync/atomic"
)

type snapshot struct {
	list []*Entity
	byID map[ID]*Entity
}

var emptySnapshot = &snapshot{byID: map[ID]*Entity{}}

// Registry is a copy-on-write entity set. Writers serialize on mu and
// publish a fresh snapshot; readers load the pointer and never lock.
type Registry struct {
	mu     sync.Mutex
	cur    atomic.Pointer[snapshot]
	nextID atomic.Uint64
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.cur.Store(emptySnapshot)
	return r
}

// NextID allocates a fresh id. Ids are never reused.
func (r *Registry) NextID() ID {
	return ID(r.nextID.Add(1))
}

// LastID is the most recently allocated id.
func (r *Registry) LastID() ID { return ID(r.nextID.Load()) }

// ReserveIDs makes sure future ids are above floor.
func (r *Registry) ReserveIDs(floor ID) {
	for {
		cur := r.nextID.Load()
		if cur >= uint64(floor) {
			return
		}
		if r.nextID.CompareAndSwap(cur, uint64(floor)) {
			return
		}
	}
}

// Add inserts e. Adding an id that is already present is a no-op.
func (r *Registry) Add(e *Entity) bool {
	if e == nil || e.ID == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.cur.Load()
	if _, ok := old.byID[e.ID]; ok {
		return false
	}
	next := &snapshot{
		list: make([]*Entity, len(old.list), len(old.list)+1),
		byID: make(map[ID]*Entity, len(old.byID)+1),
	}
	copy(next.list, old.list)
	next.list = append(next.list, e)
	for id, v := range old.byID {
		next.byID[id] = v
	}
	next.byID[e.ID] = e
	r.cur.Store(next)
	return true
}

func (r *Registry) Remove(e *Entity) bool {
	if e == nil {
		return false
	}
	return r.RemoveByID(e.ID)
}

// RemoveByID drops id; a second call for the same id returns false.
func (r *Registry) RemoveByID(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.cur.Load()
	if _, ok := old.byID[id]; !ok {
		return false
	}
	next := &snapshot{
		list: make([]*Entity, 0, len(old.list)-1),
		byID: make(map[ID]*Entity, len(old.byID)-1),
	}
	for _, v := range old.list {
		if v.ID == id {
			continue
		}
		next.list = append(next.list, v)
		next.byID[v.ID] = v
	}
	r.cur.Store(next)
	return true
}

func (r *Registry) Get(id ID) (*Entity, bool) {
	e, ok := r.cur.Load().byID[id]
	return e, ok
}

func (r *Registry) Contains(id ID) bool {
	_, ok := r.cur.Load().byID[id]
	return ok
}

func (r *Registry) Len() int { return len(r.cur.Load().list) }

// Snapshot returns the current membership. Later writes do not affect it.
func (r *Registry) Snapshot() Snapshot { return Snapshot{s: r.cur.Load()} }

type Snapshot struct{ s *snapshot }

func (s Snapshot) Len() int {
	if s.s == nil {
		return 0
	}
	return len(s.s.list)
}

func (s Snapshot) Get(id ID) (*Entity, bool) {
	if s.s == nil {
		return nil, false
	}
	e, ok := s.s.byID[id]
	return e, ok
}

// Each visits entities in insertion order until fn returns false.
func (s Snapshot) Each(fn func(e *Entity) bool) {
	if s.s == nil {
		return
	}
	for _, e := range s.s.list {
		if !fn(e) {
			return
		}
	}
}

// Entities returns a copy of the member list.
func (s Snapshot) Entities() []*Entity {
	if s.s == nil {
		return nil
	}
	out := make([]*Entity, len(s.s.list))
	copy(out, s.s.list)
	return out
}
