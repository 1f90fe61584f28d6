package world

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/blocks"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

type handlerFunc func(w *World, s *Session, raw json.RawMessage, tick uint64)

var handlers = map[string]handlerFunc{
	protocol.TypeInput:           (*World).handleInput,
	protocol.TypeBlockChange:     (*World).handleBlockChange,
	protocol.TypeInventoryAction: (*World).handleInventory,
	protocol.TypeInteract:        (*World).handleInteract,
	protocol.TypeAttack:          (*World).handleAttack,
	protocol.TypeChat:            (*World).handleChat,
	protocol.TypePing:            (*World).handlePing,
}

const (
	cooldownAttack   = "attack"
	cooldownInteract = "interact"
	cooldownPlace    = "place"
)

// handleInbound drains one session's queue in arrival order.
func (w *World) handleInbound(s *Session, tick uint64) {
	for _, in := range s.drain() {
		if s.Closed() {
			return
		}
		h, ok := handlers[in.Type]
		if !ok {
			w.logger.Printf("session %s: dropped unknown message type %q", s.Name, in.Type)
			s.sendError(protocol.ErrProtoBadRequest, "unknown message type", in.Type)
			continue
		}
		h(w, s, in.Raw, tick)
	}
}

func decode[T any](w *World, s *Session, raw json.RawMessage, typ string) (T, bool) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		w.logger.Printf("session %s: bad %s: %v", s.Name, typ, err)
		s.sendError(protocol.ErrProtoBadRequest, "malformed "+typ, typ)
		return m, false
	}
	return m, true
}

func (w *World) alive(s *Session, typ string) bool {
	if s.player == nil || !s.player.Alive() {
		s.sendError(protocol.ErrDead, "player is dead", typ)
		return false
	}
	return true
}

// inReach measures from the player's center to the tile's center.
func (w *World) inReach(s *Session, x, y int, reach float64) bool {
	c := s.player.Center()
	t := mgl64.Vec2{float64(x) + 0.5, float64(y) + 0.5}
	return c.Sub(t).Len() <= reach
}

// correct sends the authoritative value of (x,y) to s only.
func (w *World) correct(s *Session, x, y int, code string) {
	var t uint16
	if w.tiles.InBounds(x, y) {
		t = w.tiles.Tile(x, y)
	}
	s.queueMsg(protocol.BlockChangeMsg{
		Type:            protocol.TypeBlockChange,
		ProtocolVersion: protocol.Version,
		X:               x,
		Y:               y,
		Tile:            t,
		Block:           w.blockName(t),
		Correction:      true,
		Code:            code,
	})
}

func (w *World) blockName(t uint16) string {
	if int(t) < len(w.cat.Blocks.Palette) {
		return w.cat.Blocks.Palette[t]
	}
	return ""
}

func (w *World) systemChat(s *Session, text string) {
	s.queueMsg(protocol.ChatMsg{
		Type:            protocol.TypeChat,
		ProtocolVersion: protocol.Version,
		Text:            text,
		System:          true,
	})
}

func (w *World) handleInput(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.InputMsg](w, s, raw, protocol.TypeInput)
	if !ok || s.player == nil {
		return
	}
	p := s.player.Player
	if m.Seq != 0 && m.Seq < p.Seq {
		return
	}
	p.Seq = m.Seq
	p.MoveX = max(-1, min(1, m.MoveX))
	p.Jump = m.Jump
}

func (w *World) handleBlockChange(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.BlockChangeReq](w, s, raw, protocol.TypeBlockChange)
	if !ok {
		return
	}
	switch m.Action {
	case protocol.BlockBreak:
		w.breakBlock(s, m.X, m.Y, tick)
	case protocol.BlockCancel:
		if s.breaking.Active() {
			st := s.breaking
			s.breaking.Reset()
			s.queueMsg(protocol.BreakingProgressMsg{
				Type:            protocol.TypeBreakingProgress,
				ProtocolVersion: protocol.Version,
				X:               st.X,
				Y:               st.Y,
				Stop:            true,
			})
		}
	case protocol.BlockPlace:
		w.placeBlock(s, m.X, m.Y, m.Slot, tick)
	default:
		s.sendError(protocol.ErrBadRequest, "unknown block action", protocol.TypeBlockChange)
	}
}

func (w *World) breakBlock(s *Session, x, y int, tick uint64) {
	if !w.alive(s, protocol.TypeBlockChange) {
		w.correct(s, x, y, protocol.ErrDead)
		return
	}
	if !w.inReach(s, x, y, w.tune.ReachTiles) {
		w.correct(s, x, y, protocol.ErrOutOfReach)
		return
	}
	res := w.engine.Break(w.actor(s), &s.breaking, x, y, tick)
	switch res.Status {
	case blocks.BreakRejected:
		w.correct(s, x, y, res.Code)
	case blocks.BreakProgress:
		s.queueMsg(protocol.BreakingProgressMsg{
			Type:            protocol.TypeBreakingProgress,
			ProtocolVersion: protocol.Version,
			X:               x,
			Y:               y,
			Ticks:           res.Ticks,
			Required:        res.Required,
		})
	case blocks.BreakCompleted:
		s.queueMsg(protocol.BreakingProgressMsg{
			Type:            protocol.TypeBreakingProgress,
			ProtocolVersion: protocol.Version,
			X:               x,
			Y:               y,
			Ticks:           res.Ticks,
			Required:        res.Required,
			Done:            true,
		})
		w.spawnDrops(res.Drops, tick)
		s.invDirty = true
		if res.ToolBroken {
			w.systemChat(s, "your tool broke")
		}
	}
}

func (w *World) placeBlock(s *Session, x, y, slot int, tick uint64) {
	if !w.alive(s, protocol.TypeBlockChange) {
		w.correct(s, x, y, protocol.ErrDead)
		return
	}
	if !w.inReach(s, x, y, w.tune.ReachTiles) {
		w.correct(s, x, y, protocol.ErrOutOfReach)
		return
	}
	if s.coolingDown(cooldownPlace, tick) {
		w.correct(s, x, y, protocol.ErrCooldown)
		return
	}
	res := w.engine.Place(w.actor(s), x, y, slot, tick)
	if !res.OK {
		w.correct(s, x, y, res.Code)
		return
	}
	s.armCooldown(cooldownPlace, tick, w.tune.Cooldowns.PlaceTicks)
	s.invDirty = true
}

func (w *World) handleInventory(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.InventoryActionMsg](w, s, raw, protocol.TypeInventoryAction)
	if !ok || s.player == nil {
		return
	}
	inv := s.player.Player.Inv
	fail := func(code, msg string) { s.sendError(code, msg, protocol.TypeInventoryAction) }

	switch m.Action {
	case protocol.InvSelect:
		if !inv.Select(m.Slot) {
			fail(protocol.ErrBadRequest, "bad slot")
			return
		}
		s.breaking.Reset()
	case protocol.InvSwap:
		if !inv.Swap(m.Slot, m.To) {
			fail(protocol.ErrBadRequest, "bad slot")
			return
		}
	case protocol.InvDrop:
		if !w.alive(s, protocol.TypeInventoryAction) {
			return
		}
		n := m.Count
		if n <= 0 {
			n = entity.InventorySize * 1000
		}
		st, ok := inv.TakeSlot(m.Slot, n)
		if !ok {
			fail(protocol.ErrNoResource, "slot is empty")
			return
		}
		w.throwItem(s.player, st, tick)
	case protocol.InvCraft:
		if code, msg := w.craft(s, m.Recipe); code != "" {
			fail(code, msg)
			return
		}
	case protocol.InvContainerPut:
		if code, msg := w.containerPut(s, m); code != "" {
			fail(code, msg)
			return
		}
	case protocol.InvContainerTake:
		if code, msg := w.containerTake(s, m); code != "" {
			fail(code, msg)
			return
		}
	default:
		fail(protocol.ErrBadRequest, "unknown inventory action")
		return
	}
	s.invDirty = true
}

func (w *World) craft(s *Session, recipeID string) (string, string) {
	if !s.player.Alive() {
		return protocol.ErrDead, "player is dead"
	}
	r, ok := w.cat.Recipes.ByID[recipeID]
	if !ok {
		return protocol.ErrBadRequest, "unknown recipe"
	}
	if r.Station != "HAND" {
		return protocol.ErrInvalidTarget, "recipe needs a " + strings.ToLower(r.Station)
	}
	if r.RequiredClass != "" && r.RequiredClass != s.Class {
		return protocol.ErrBlocked, "recipe needs class " + r.RequiredClass
	}
	inv := s.player.Player.Inv
	work := *inv
	for _, in := range r.Inputs {
		if !work.Remove(in.Item, in.Count) {
			return protocol.ErrNoResource, "missing " + in.Item
		}
	}
	class := w.cat.Class(s.Class)
	for _, out := range r.Outputs {
		n := out.Count
		if def, ok := w.cat.Item(out.Item); ok && def.Kind == catalogs.KindTool {
			// Tools never stack; add them one at a time.
			for i := 0; i < n; i++ {
				if work.Add(w.newStack(out.Item, 1, &class), w.engine.Limit) != 0 {
					return protocol.ErrBlocked, "inventory full"
				}
			}
			continue
		}
		if work.Add(w.newStack(out.Item, n, nil), w.engine.Limit) != 0 {
			return protocol.ErrBlocked, "inventory full"
		}
	}
	*inv = work
	return "", ""
}

// openContainer returns the container s has open at (x,y). A container
// out of reach is closed.
func (w *World) openContainer(s *Session, x, y int) (*Container, string) {
	if s.open == nil || s.open.X != x || s.open.Y != y {
		return nil, protocol.ErrNotOpen
	}
	c, ok := w.containers.Get(x, y)
	if !ok || c != s.open {
		return nil, protocol.ErrNotOpen
	}
	if !w.inReach(s, x, y, w.tune.ReachTiles) {
		w.closeContainer(s)
		return nil, protocol.ErrOutOfReach
	}
	return c, ""
}

func (w *World) containerPut(s *Session, m protocol.InventoryActionMsg) (string, string) {
	c, code := w.openContainer(s, m.X, m.Y)
	if code != "" {
		return code, "container is not open"
	}
	inv := s.player.Player.Inv
	n := m.Count
	if n <= 0 {
		n = entity.InventorySize * 1000
	}
	slot, ok := inv.Slot(m.Slot)
	if !ok || slot.Empty() {
		return protocol.ErrNoResource, "slot is empty"
	}
	if c.Kind == catalogs.ContainerFurnace && m.To == FurnaceOutput {
		return protocol.ErrInvalidTarget, "cannot put into furnace output"
	}
	st, _ := inv.TakeSlot(m.Slot, n)
	left := c.Insert(st, m.To, w.engine.Limit)
	if left > 0 {
		back := st
		back.Count = left
		inv.Add(back, w.engine.Limit)
	}
	if left == st.Count {
		return protocol.ErrBlocked, "container is full"
	}
	return "", ""
}

func (w *World) containerTake(s *Session, m protocol.InventoryActionMsg) (string, string) {
	c, code := w.openContainer(s, m.X, m.Y)
	if code != "" {
		return code, "container is not open"
	}
	n := m.Count
	if n <= 0 {
		n = entity.InventorySize * 1000
	}
	st, ok := c.Take(m.Slot, n)
	if !ok {
		return protocol.ErrNoResource, "slot is empty"
	}
	left := s.player.Player.Inv.Add(st, w.engine.Limit)
	if left > 0 {
		cur := &c.Slots[m.Slot]
		if cur.Empty() {
			*cur = st
			cur.Count = left
		} else {
			cur.Count += left
		}
	}
	if left == st.Count {
		return protocol.ErrBlocked, "inventory full"
	}
	return "", ""
}

func (w *World) handleInteract(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.InteractMsg](w, s, raw, protocol.TypeInteract)
	if !ok {
		return
	}
	switch m.Action {
	case protocol.InteractClose:
		if s.open == nil {
			s.sendError(protocol.ErrNotOpen, "no container open", protocol.TypeInteract)
			return
		}
		w.closeContainer(s)
	case protocol.InteractUse:
		if !w.alive(s, protocol.TypeInteract) {
			return
		}
		if !s.cooldownReady(cooldownInteract, tick, w.tune.Cooldowns.InteractTicks) {
			s.sendError(protocol.ErrCooldown, "interact cooldown", protocol.TypeInteract)
			return
		}
		w.use(s, m.X, m.Y, tick)
	default:
		s.sendError(protocol.ErrBadRequest, "unknown interact action", protocol.TypeInteract)
	}
}

func (w *World) closeContainer(s *Session) {
	c := s.open
	s.open = nil
	if c != nil {
		s.queueMsg(c.message(false))
	}
}

// use activates the tile at (x,y), or eats the held food when the tile
// has nothing to use.
func (w *World) use(s *Session, x, y int, tick uint64) {
	var d catalogs.BlockDef
	t := tiles.Air
	if w.tiles.InBounds(x, y) {
		t = w.tiles.Tile(x, y)
		d, _ = w.cat.Block(t)
	}
	interactive := t != tiles.Air && (d.Container != "" || d.ToggleTo != "" || d.SpawnPoint)
	if !interactive {
		w.eat(s)
		return
	}
	if !w.inReach(s, x, y, w.tune.ReachTiles) {
		s.sendError(protocol.ErrOutOfReach, "out of reach", protocol.TypeInteract)
		return
	}
	switch {
	case d.Container != "":
		if s.open != nil {
			w.closeContainer(s)
		}
		c, ok := w.containers.Get(x, y)
		if !ok {
			w.containers.Create(x, y, d.Container)
			c, _ = w.containers.Get(x, y)
		}
		s.open = c
		s.breaking.Reset()
		s.queueMsg(c.message(true))
	case d.ToggleTo != "":
		if _, ok := w.engine.Toggle(w.actor(s), x, y, tick); !ok {
			w.correct(s, x, y, protocol.ErrBlocked)
		}
	case d.SpawnPoint:
		bx := x
		if d.Companion != nil && d.Companion.DX < 0 {
			bx = x + d.Companion.DX
		}
		s.player.Player.Spawn = [2]int{bx, y}
		s.player.Player.BedSpawn = true
		w.systemChat(s, "spawn point set")
	}
}

func (w *World) eat(s *Session) {
	inv := s.player.Player.Inv
	held := inv.Held()
	def, ok := w.cat.Item(held.Item)
	if held.Empty() || !ok || def.Kind != catalogs.KindFood {
		s.sendError(protocol.ErrInvalidTarget, "nothing to use", protocol.TypeInteract)
		return
	}
	p := s.player
	if p.HP >= p.MaxHP {
		s.sendError(protocol.ErrBlocked, "already at full health", protocol.TypeInteract)
		return
	}
	held.Count--
	if held.Count <= 0 {
		*held = entity.Stack{}
	}
	p.HP = min(p.MaxHP, p.HP+def.EdibleHP)
	s.invDirty = true
}

func (w *World) handleAttack(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.AttackMsg](w, s, raw, protocol.TypeAttack)
	if !ok || !w.alive(s, protocol.TypeAttack) {
		return
	}
	fail := func(code, msg string) { s.sendError(code, msg, protocol.TypeAttack) }
	if s.open != nil {
		fail(protocol.ErrBlocked, "close the container first")
		return
	}

	inv := s.player.Player.Inv
	held := inv.Held()
	def, _ := w.cat.Item(held.Item)
	class := w.cat.Class(s.Class)

	if def.Kind == catalogs.KindTool && def.ToolClass == catalogs.ToolBow {
		if inv.Count(def.Ammo) == 0 {
			fail(protocol.ErrNoResource, "no "+strings.ToLower(def.Ammo))
			return
		}
		aim := mgl64.Vec2{m.Aim[0], m.Aim[1]}
		if aim.Len() < 1e-6 {
			fail(protocol.ErrBadRequest, "aim required")
			return
		}
		if !s.cooldownReady(cooldownAttack, tick, w.tune.Cooldowns.AttackTicks) {
			fail(protocol.ErrCooldown, "attack cooldown")
			return
		}
		inv.Remove(def.Ammo, 1)
		held.UseTool()
		w.shoot(s.player, aim.Normalize(), def.Damage+class.DamageBonus, tick)
		s.invDirty = true
		return
	}

	target, ok := w.registry.Get(entity.ID(m.TargetID))
	if !ok || target == s.player || !target.Alive() {
		fail(protocol.ErrInvalidTarget, "no such target")
		return
	}
	switch target.Kind {
	case entity.KindMob:
	case entity.KindPlayer:
		if !w.tune.PvP {
			fail(protocol.ErrInvalidTarget, "pvp is disabled")
			return
		}
	default:
		fail(protocol.ErrInvalidTarget, "target cannot be attacked")
		return
	}
	if s.player.Center().Sub(target.Center()).Len() > w.tune.MeleeReachTiles {
		fail(protocol.ErrOutOfReach, "target out of reach")
		return
	}
	if !s.cooldownReady(cooldownAttack, tick, w.tune.Cooldowns.AttackTicks) {
		fail(protocol.ErrCooldown, "attack cooldown")
		return
	}
	dmg := 1
	if def.Damage > 0 {
		dmg = def.Damage
	}
	dmg += class.DamageBonus
	if held.IsTool() {
		held.UseTool()
		s.invDirty = true
	}
	w.hurt(target, dmg, s.player.Center(), tick)
}

func (w *World) handleChat(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.ChatMsg](w, s, raw, protocol.TypeChat)
	if !ok {
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if len(text) > w.tune.Chat.MaxLen {
		s.sendError(protocol.ErrBadRequest, "message too long", protocol.TypeChat)
		return
	}
	if !s.chat.Allow() {
		s.sendError(protocol.ErrRateLimit, "slow down", protocol.TypeChat)
		return
	}
	if strings.HasPrefix(text, "/") {
		w.command(s, text)
		return
	}
	out := protocol.ChatMsg{
		Type:            protocol.TypeChat,
		ProtocolVersion: protocol.Version,
		From:            s.Name,
		Text:            text,
	}
	for _, o := range w.order {
		if o.synced || o == s {
			o.queueMsg(out)
		}
	}
}

func (w *World) command(s *Session, text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/who":
		names := make([]string, 0, len(w.order))
		for _, o := range w.order {
			names = append(names, o.Name)
		}
		sort.Strings(names)
		w.systemChat(s, fmt.Sprintf("%d online: %s", len(names), strings.Join(names, ", ")))
	case "/spawn":
		if !w.alive(s, protocol.TypeChat) {
			return
		}
		s.player.Pos = w.standingPos(w.spawnOf(s.player), s.player.Size)
		s.player.Vel = mgl64.Vec2{}
		s.breaking.Reset()
		w.systemChat(s, "teleported to spawn")
	default:
		s.sendError(protocol.ErrBadRequest, "unknown command "+fields[0], protocol.TypeChat)
	}
}

func (w *World) handlePing(s *Session, raw json.RawMessage, tick uint64) {
	m, ok := decode[protocol.PingMsg](w, s, raw, protocol.TypePing)
	if !ok {
		return
	}
	s.queueMsg(protocol.PongMsg{
		Type:            protocol.TypePong,
		ProtocolVersion: protocol.Version,
		ClientTime:      m.ClientTime,
		ServerTick:      tick,
	})
}
