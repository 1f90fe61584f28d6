package tiles

import "sync"

// Air is the empty tile; palette index 0 by catalog contract.
const Air uint16 = 0

// Map is the tile storage used by the simulation. Only the tick goroutine
// calls the mutating methods.
type Map interface {
	Width() int
	Height() int
	InBounds(x, y int) bool
	// Tile returns Air for out-of-bounds coordinates.
	Tile(x, y int) uint16
	SetTile(x, y int, t uint16) bool
	// RemoveTile clears (x,y) and returns the previous tile.
	RemoveTile(x, y int) uint16
}

// Reader is the read-only subset handed to other goroutines.
type Reader interface {
	Width() int
	Height() int
	InBounds(x, y int) bool
	Tile(x, y int) uint16
}

// Grid is a dense row-major Map. Reads may race with the tick, so every
// access takes the lock.
type Grid struct {
	mu    sync.RWMutex
	w, h  int
	cells []uint16
	rev   uint64
}

func NewGrid(w, h int) *Grid {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Grid{w: w, h: h, cells: make([]uint16, w*h)}
}

// FromTiles adopts a row-major slice; it must hold exactly w*h tiles.
func FromTiles(w, h int, cells []uint16) (*Grid, bool) {
	if w < 0 || h < 0 || len(cells) != w*h {
		return nil, false
	}
	cp := make([]uint16, len(cells))
	copy(cp, cells)
	return &Grid{w: w, h: h, cells: cp}, true
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.w && y < g.h
}

func (g *Grid) Tile(x, y int) uint16 {
	if !g.InBounds(x, y) {
		return Air
	}
	g.mu.RLock()
	t := g.cells[y*g.w+x]
	g.mu.RUnlock()
	return t
}

func (g *Grid) SetTile(x, y int, t uint16) bool {
	if !g.InBounds(x, y) {
		return false
	}
	g.mu.Lock()
	g.cells[y*g.w+x] = t
	g.rev++
	g.mu.Unlock()
	return true
}

func (g *Grid) RemoveTile(x, y int) uint16 {
	if !g.InBounds(x, y) {
		return Air
	}
	g.mu.Lock()
	i := y*g.w + x
	prev := g.cells[i]
	g.cells[i] = Air
	g.rev++
	g.mu.Unlock()
	return prev
}

// Copy returns a row-major copy of the whole grid.
func (g *Grid) Copy() []uint16 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]uint16, len(g.cells))
	copy(out, g.cells)
	return out
}

// Revision counts mutations since creation.
func (g *Grid) Revision() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rev
}

type readOnly struct{ r Reader }

// ReadOnly hides the mutating methods of m.
func ReadOnly(m Reader) Reader { return readOnly{r: m} }

func (ro readOnly) Width() int             { return ro.r.Width() }
func (ro readOnly) Height() int            { return ro.r.Height() }
func (ro readOnly) InBounds(x, y int) bool { return ro.r.InBounds(x, y) }
func (ro readOnly) Tile(x, y int) uint16   { return ro.r.Tile(x, y) }
