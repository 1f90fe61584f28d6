package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/encoding"
	"tilecraft.ai/internal/sim/entity"
)

// broadcast queues this tick's outbound state: WORLD_INIT for sessions
// admitted since the last tick, tile changes for synced sessions every tick,
// and per-viewer entity diffs at the broadcast cadence. Inventory and
// container updates go out every tick.
func (w *World) broadcast(tick uint64) {
	for _, s := range w.order {
		if !s.initSent && !s.Closed() {
			w.sendWorldInit(s, tick)
		}
	}

	// Tile changes go out every tick; the commit set only spans one tick.
	changes := w.engine.DrainChanges()
	every := uint64(w.tune.BroadcastEveryTicks)
	diffs := every <= 1 || tick%every == 0
	var snap entity.Snapshot
	if diffs {
		snap = w.registry.Snapshot()
	}
	for _, s := range w.order {
		if !s.synced || s.Closed() {
			continue
		}
		for _, c := range changes {
			s.queueMsg(protocol.BlockChangeMsg{
				Type:            protocol.TypeBlockChange,
				ProtocolVersion: protocol.Version,
				X:               c.X,
				Y:               c.Y,
				Tile:            c.Tile,
				Block:           w.blockName(c.Tile),
			})
		}
		if diffs {
			w.sendEntityDiff(s, snap, tick)
		}
	}

	for _, s := range w.order {
		if s.open != nil {
			c, ok := w.containers.Get(s.open.X, s.open.Y)
			switch {
			case !ok || c != s.open:
				// Broken while open.
				w.closeContainer(s)
			case s.player == nil || !s.player.Alive() || !w.inReach(s, c.X, c.Y, w.tune.ReachTiles):
				w.closeContainer(s)
			case c.dirty:
				s.queueMsg(c.message(true))
			}
		}
		if s.invDirty && s.initSent && s.player != nil {
			s.queueMsg(inventoryMsg(s.player.Player.Inv))
			s.invDirty = false
		}
	}
	for _, c := range w.containers.byPos {
		c.dirty = false
	}
}

func inventoryMsg(inv *entity.Inventory) protocol.InventoryMsg {
	return protocol.InventoryMsg{
		Type:            protocol.TypeInventory,
		ProtocolVersion: protocol.Version,
		Selected:        inv.Selected,
		Size:            entity.InventorySize,
		Slots:           slotObs(inv.Slots[:]),
	}
}

// viewRect is the viewer's culling rectangle: the viewport around the
// player's center expanded by the margin on every side.
func (w *World) viewRect(s *Session) (mgl64.Vec2, mgl64.Vec2) {
	vp := w.tune.Viewport
	half := mgl64.Vec2{
		float64(vp.Width)/2 + float64(vp.Margin),
		float64(vp.Height)/2 + float64(vp.Margin),
	}
	c := s.player.Center()
	return c.Sub(half), c.Add(half)
}

func visible(lo, hi mgl64.Vec2, v *entity.View) bool {
	elo, ehi := v.Pos, v.Pos.Add(v.Size)
	return elo.X() < hi.X() && ehi.X() > lo.X() && elo.Y() < hi.Y() && ehi.Y() > lo.Y()
}

func viewOf(e *entity.Entity, tick uint64) *entity.View {
	if v := e.View(); v != nil {
		return v
	}
	return e.Publish(tick)
}

// culled lists the states s can see, its own entity always included.
func (w *World) culled(s *Session, snap entity.Snapshot, tick uint64) []protocol.EntityState {
	var out []protocol.EntityState
	if s.player == nil {
		return out
	}
	lo, hi := w.viewRect(s)
	snap.Each(func(e *entity.Entity) bool {
		v := viewOf(e, tick)
		if e == s.player || visible(lo, hi, v) {
			out = append(out, v.Wire)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) sendWorldInit(s *Session, tick uint64) {
	states := w.culled(s, w.registry.Snapshot(), tick)
	for _, st := range states {
		s.lastSent[entity.ID(st.ID)] = st
	}
	s.queueMsg(protocol.WorldInitMsg{
		Type:            protocol.TypeWorldInit,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Width:           w.tiles.Width(),
		Height:          w.tiles.Height(),
		Palette:         w.cat.Blocks.Palette,
		PaletteDigest:   w.cat.Blocks.PaletteDigest,
		Encoding:        "RLE",
		Tiles:           encoding.EncodeTiles(w.tiles.Copy()),
		Spawn:           w.spawnOf(s.player),
		SelfID:          uint64(s.player.ID),
		Entities:        states,
	})
	s.queueMsg(inventoryMsg(s.player.Player.Inv))
	s.invDirty = false
	s.initSent = true
}

// sendEntityDiff upserts changed states and lists entities that left the
// viewer's view or the world.
func (w *World) sendEntityDiff(s *Session, snap entity.Snapshot, tick uint64) {
	states := w.culled(s, snap, tick)
	seen := make(map[entity.ID]struct{}, len(states))
	var ups []protocol.EntityState
	for _, st := range states {
		id := entity.ID(st.ID)
		seen[id] = struct{}{}
		if prev, ok := s.lastSent[id]; ok && prev == st {
			continue
		}
		s.lastSent[id] = st
		ups = append(ups, st)
	}
	var removed []uint64
	for id := range s.lastSent {
		if _, ok := seen[id]; !ok {
			removed = append(removed, uint64(id))
			delete(s.lastSent, id)
		}
	}
	if len(ups) == 0 && len(removed) == 0 {
		return
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	if ups == nil {
		ups = []protocol.EntityState{}
	}
	if removed == nil {
		removed = []uint64{}
	}
	s.queueMsg(protocol.EntityDiffMsg{
		Type:            protocol.TypeEntityDiff,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Upserts:         ups,
		Removed:         removed,
	})
}
