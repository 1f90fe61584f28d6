package world

import (
	"fmt"

	"tilecraft.ai/internal/persistence/snapshot"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

func (w *World) record(s *Session, tick uint64) PlayerRecord {
	p := s.player
	rec := PlayerRecord{
		Name:      s.Name,
		Class:     s.Class,
		X:         p.Pos.X(),
		Y:         p.Pos.Y(),
		HP:        p.HP,
		Spawn:     p.Player.Spawn,
		BedSpawn:  p.Player.BedSpawn,
		Inventory: *p.Player.Inv,
		SavedTick: tick,
	}
	if p.Dead {
		pos := w.standingPos(p.Player.Spawn, p.Size)
		rec.X, rec.Y, rec.HP = pos.X(), pos.Y(), p.MaxHP
	}
	return rec
}

func (w *World) savePlayer(s *Session, tick uint64) {
	if w.cfg.Store == nil || s.player == nil {
		return
	}
	if err := w.cfg.Store.SavePlayer(w.record(s, tick)); err != nil {
		w.logger.Printf("save player %s: %v", s.Name, err)
	}
}

func (w *World) maybeAutosave(tick uint64) {
	every := uint64(w.tune.AutosaveEveryTicks)
	if w.cfg.Store == nil || every == 0 || tick == 0 || tick%every != 0 {
		return
	}
	for _, s := range w.order {
		w.savePlayer(s, tick)
	}
}

func (w *World) maybeSnapshot(tick uint64) {
	every := uint64(w.tune.SnapshotEveryTicks)
	if w.cfg.SnapshotSink == nil || every == 0 || tick == 0 || tick%every != 0 {
		return
	}
	snap := w.ExportSnapshot(tick)
	select {
	case w.cfg.SnapshotSink <- snap:
	default:
		w.logger.Printf("snapshot %d dropped: sink busy", tick)
	}
}

// ExportSnapshot copies tiles and containers. Call it from the tick
// goroutine or after the loop has stopped.
func (w *World) ExportSnapshot(tick uint64) snapshot.WorldV1 {
	snap := snapshot.WorldV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Tick:    tick,
			Width:   w.tiles.Width(),
			Height:  w.tiles.Height(),

			NextEntityID: uint64(w.registry.LastID()),
		},
		Seed:          w.cfg.Seed,
		Palette:       append([]string(nil), w.cat.Blocks.Palette...),
		PaletteDigest: w.cat.Blocks.PaletteDigest,
		Tiles:         w.tiles.Copy(),
	}
	for _, c := range w.containers.All() {
		cv := snapshot.ContainerV1{Kind: c.Kind, X: c.X, Y: c.Y, Progress: c.Progress, Burn: c.Burn}
		for _, st := range c.Slots {
			cv.Slots = append(cv.Slots, snapshot.StackV1{
				Item: st.Item, Count: st.Count, Uses: st.Uses, TotalUses: st.TotalUses, Bonus: st.Bonus,
			})
		}
		snap.Containers = append(snap.Containers, cv)
	}
	return snap
}

// importSnapshot restores tiles, remapping palette ids by name when the
// block catalog changed since the snapshot was written.
func (w *World) importSnapshot(snap *snapshot.WorldV1) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	cells := snap.Tiles
	if snap.PaletteDigest != w.cat.Blocks.PaletteDigest {
		remap := make([]uint16, len(snap.Palette))
		for i, name := range snap.Palette {
			v, ok := w.cat.BlockIndex(name)
			if !ok {
				w.logger.Printf("snapshot: block %s no longer exists, using AIR", name)
				v = tiles.Air
			}
			remap[i] = v
		}
		cells = make([]uint16, len(snap.Tiles))
		for i, t := range snap.Tiles {
			if int(t) >= len(remap) {
				return fmt.Errorf("snapshot: tile id %d outside palette", t)
			}
			cells[i] = remap[t]
		}
	}
	g, ok := tiles.FromTiles(snap.Header.Width, snap.Header.Height, cells)
	if !ok {
		return fmt.Errorf("snapshot: tile count mismatch")
	}
	w.tiles = g
	if snap.Seed != 0 {
		w.cfg.Seed = snap.Seed
	}
	for _, cv := range snap.Containers {
		c := newContainer(cv.Kind, cv.X, cv.Y)
		for i, st := range cv.Slots {
			if i >= len(c.Slots) {
				break
			}
			c.Slots[i] = entity.Stack{Item: st.Item, Count: st.Count, Uses: st.Uses, TotalUses: st.TotalUses, Bonus: st.Bonus}
		}
		c.Progress, c.Burn = cv.Progress, cv.Burn
		w.containers.put(c)
	}
	w.registry.ReserveIDs(entity.ID(snap.Header.NextEntityID))
	w.tick.Store(snap.Header.Tick)
	return nil
}
