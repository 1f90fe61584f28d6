package blocks

import (
	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

type PlaceResult struct {
	OK      bool
	Code    string
	X, Y    int
	Tile    uint16
	Changes []Change
	// Consumed is false when the class skip-consume roll fired.
	Consumed bool
}

func (e *Engine) placeReject(x, y int, code string) PlaceResult {
	return PlaceResult{Code: code, X: x, Y: y, Tile: e.Map.Tile(x, y)}
}

var neighbours = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

func (e *Engine) anchored(x, y int) bool {
	for _, n := range neighbours {
		if e.Map.Tile(x+n[0], y+n[1]) != tiles.Air {
			return true
		}
	}
	return false
}

// Place puts the block item in slot at (x,y). Two-tile blocks also need
// their companion cell; if it is unavailable the placement is undone and
// the item refunded.
func (e *Engine) Place(a *Actor, x, y, slot int, tick uint64) PlaceResult {
	if a.UIBlocked {
		return e.placeReject(x, y, protocol.ErrBlocked)
	}
	st, ok := a.Inv.Slot(slot)
	if !ok || st.Empty() {
		return e.placeReject(x, y, protocol.ErrNoResource)
	}
	it, ok := e.Cat.Item(st.Item)
	if !ok || it.PlaceAs == "" {
		return e.placeReject(x, y, protocol.ErrInvalidTarget)
	}
	blockID, ok := e.Cat.BlockIndex(it.PlaceAs)
	if !ok {
		return e.placeReject(x, y, protocol.ErrInvalidTarget)
	}
	def := e.Cat.Blocks.Defs[it.PlaceAs]
	if !e.Map.InBounds(x, y) {
		return e.placeReject(x, y, protocol.ErrInvalidTarget)
	}
	if e.Committed(x, y) || e.Map.Tile(x, y) != tiles.Air {
		return e.placeReject(x, y, protocol.ErrBlocked)
	}
	if def.RequiredClass != "" && a.Class.ID != def.RequiredClass {
		return e.placeReject(x, y, protocol.ErrBlocked)
	}
	if def.Solid && a.Entity != nil && a.Entity.OverlapsTile(x, y) {
		return e.placeReject(x, y, protocol.ErrBlocked)
	}
	if !e.anchored(x, y) {
		return e.placeReject(x, y, protocol.ErrInvalidTarget)
	}

	orig := *st
	e.Map.SetTile(x, y, blockID)
	consumed := true
	if a.Class.SkipConsumePermille > 0 && e.Rand.Intn(1000) < a.Class.SkipConsumePermille {
		consumed = false
	} else {
		st.Count--
		if st.Count <= 0 {
			*st = entity.Stack{}
		}
	}

	var compX, compY int
	var compID uint16
	if def.Companion != nil {
		compX, compY = x+def.Companion.DX, y+def.Companion.DY
		cid, ok := e.Cat.BlockIndex(def.Companion.Block)
		cdef := e.Cat.Blocks.Defs[def.Companion.Block]
		blocked := !ok || !e.Map.InBounds(compX, compY) ||
			e.Map.Tile(compX, compY) != tiles.Air || e.Committed(compX, compY) ||
			(cdef.Solid && a.Entity != nil && a.Entity.OverlapsTile(compX, compY))
		if blocked {
			e.Map.SetTile(x, y, tiles.Air)
			*st = orig
			return e.placeReject(x, y, protocol.ErrBlocked)
		}
		compID = cid
	}

	// The primary write above was provisional; commit records it properly.
	e.Map.SetTile(x, y, tiles.Air)
	e.commit(a, "PLACE", x, y, blockID)
	res := PlaceResult{OK: true, X: x, Y: y, Tile: blockID, Consumed: consumed}
	res.Changes = append(res.Changes, Change{X: x, Y: y, Tile: blockID})
	if def.Companion != nil {
		e.commit(a, "PLACE", compX, compY, compID)
		res.Changes = append(res.Changes, Change{X: compX, Y: compY, Tile: compID})
	}
	if def.Container != "" && e.Containers != nil {
		e.Containers.Create(x, y, def.Container)
	}
	return res
}

// Toggle swaps a toggleable block and its companion (doors).
func (e *Engine) Toggle(a *Actor, x, y int, tick uint64) ([]Change, bool) {
	t, d := e.def(x, y)
	if t == tiles.Air || d.ToggleTo == "" || e.Committed(x, y) {
		return nil, false
	}
	to, ok := e.Cat.BlockIndex(d.ToggleTo)
	if !ok {
		return nil, false
	}
	comp, hasComp := e.companionOf(x, y, d)
	var compTo uint16
	if hasComp {
		if e.Committed(comp.x, comp.y) {
			return nil, false
		}
		cdef := e.Cat.Blocks.Defs[e.Cat.Blocks.Palette[e.Map.Tile(comp.x, comp.y)]]
		if compTo, ok = e.Cat.BlockIndex(cdef.ToggleTo); !ok {
			return nil, false
		}
	}
	// A door cannot close on the actor standing in it.
	if a != nil && a.Entity != nil && e.Cat.IsSolid(to) {
		if a.Entity.OverlapsTile(x, y) || (hasComp && a.Entity.OverlapsTile(comp.x, comp.y)) {
			return nil, false
		}
	}
	out := []Change{{X: x, Y: y, Tile: to}}
	e.commit(a, "TOGGLE", x, y, to)
	if hasComp {
		e.commit(a, "TOGGLE", comp.x, comp.y, compTo)
		out = append(out, Change{X: comp.x, Y: comp.y, Tile: compTo})
	}
	return out, true
}
