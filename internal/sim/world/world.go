package world

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/blocks"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
	"tilecraft.ai/internal/sim/tuning"
)

type JoinRequest struct {
	Name  string
	Class string
	// Record is the saved player, loaded by the transport during auth.
	Record *PlayerRecord
	Out    chan []byte
	Resp   chan JoinResponse
}

type JoinResponse struct {
	Accepted bool
	Code     string
	Message  string
	Session  *Session
}

// World is the single-writer simulation. Everything except the channels,
// Session.Enqueue and the published views is owned by the goroutine that
// calls Tick.
type World struct {
	cfg    Config
	tune   tuning.Tuning
	cat    *catalogs.Catalogs
	logger *log.Logger

	tick atomic.Uint64

	tiles      *tiles.Grid
	registry   *entity.Registry
	factories  *entity.Factories
	engine     *blocks.Engine
	containers *Containers
	rng        *rand.Rand

	participants []Participant

	join     chan JoinRequest
	sessions map[string]*Session
	order    []*Session
	infos    atomic.Pointer[[]SessionInfo]

	despawns   []*entity.Entity
	despawnSet map[entity.ID]struct{}

	stats atomic.Pointer[Stats]
}

func New(cfg Config, cat *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cat == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	w := &World{
		cfg:        cfg,
		tune:       cfg.Tuning,
		cat:        cat,
		logger:     logger,
		registry:   entity.NewRegistry(),
		factories:  entity.DefaultFactories(cat),
		containers: NewContainers(),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		join:       make(chan JoinRequest, 64),
		sessions:   map[string]*Session{},
		despawnSet: map[entity.ID]struct{}{},
	}

	switch {
	case cfg.Snapshot != nil:
		if err := w.importSnapshot(cfg.Snapshot); err != nil {
			return nil, err
		}
	case cfg.Map != nil:
		w.tiles = cfg.Map
	default:
		w.tiles = tiles.NewGrid(w.tune.World.Width, w.tune.World.Height)
		tiles.Fill(w.tiles, w.tune.World.Surface, w.layers(), cfg.Seed)
	}

	w.engine = blocks.NewEngine(w.tiles, cat, cfg.Seed+1)
	w.engine.MaxCascade = w.tune.MaxCascade
	w.engine.Containers = w.containers
	surface := w.tune.World.Surface
	w.engine.Biome = func(x, y int) string { return tiles.BiomeAt(x, y, surface) }
	if cfg.Audit != nil {
		audit := cfg.Audit
		w.engine.Audit = func(m blocks.Mutation) {
			if err := audit.WriteAudit(m); err != nil {
				w.logger.Printf("audit: %v", err)
			}
		}
	}

	if !cfg.DisableMobs {
		w.participants = append(w.participants, newSpawner(w.tune.Mobs, cat))
	}
	w.participants = append(w.participants, newFurnaces(w.containers, cat))
	w.participants = append(w.participants, cfg.Participants...)

	empty := []SessionInfo{}
	w.infos.Store(&empty)
	w.stats.Store(&Stats{})
	return w, nil
}

func (w *World) layers() tiles.Layers {
	idx := func(id string) uint16 {
		v, _ := w.cat.BlockIndex(id)
		return v
	}
	return tiles.Layers{
		Grass: idx("GRASS"), Dirt: idx("DIRT"), Stone: idx("STONE"), Bedrock: idx("BEDROCK"),
		Coal: idx("COAL_ORE"), Iron: idx("IRON_ORE"),
		Log: idx("LOG"), Leaves: idx("LEAVES"), Flower: idx("FLOWER"),
	}
}

// Join returns the admission channel. Requests are handled at the start of
// the next tick.
func (w *World) Join() chan<- JoinRequest { return w.join }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Catalogs() *catalogs.Catalogs { return w.cat }

func (w *World) Tuning() tuning.Tuning { return w.tune }

// Tiles is safe to read from any goroutine.
func (w *World) Tiles() tiles.Reader { return tiles.ReadOnly(w.tiles) }

// Entities is safe to read from any goroutine; use Entity.View for fields.
func (w *World) Entities() entity.Snapshot { return w.registry.Snapshot() }

func (w *World) Sessions() []SessionInfo { return *w.infos.Load() }

func (w *World) Stats() Stats { return *w.stats.Load() }

// Tick advances the world by one step.
func (w *World) Tick(ctx context.Context, tick uint64) error {
	start := time.Now()
	w.tick.Store(tick)

	w.spawnDrops(w.engine.BeginTick(tick), tick)
	w.admitJoins(tick)
	w.sweepSessions(tick)

	for _, s := range w.order {
		w.handleInbound(s, tick)
	}
	w.expireBreaking(tick)

	tc := w.tickContext(tick)
	for _, p := range w.participants {
		p.Tick(tc)
	}

	w.stepPhysics(tick)
	w.stepCombat(tick)
	w.stepLife(tick)
	w.compact()

	w.publish(tick)
	w.broadcast(tick)
	w.flushAll(tick)

	w.maybeAutosave(tick)
	w.maybeSnapshot(tick)
	w.recordStats(tick, time.Since(start))
	return ctx.Err()
}

func (w *World) admitJoins(tick uint64) {
	for {
		select {
		case req := <-w.join:
			w.admit(req, tick)
		default:
			return
		}
	}
}

func reply(req JoinRequest, resp JoinResponse) bool {
	if req.Resp == nil {
		return true
	}
	select {
	case req.Resp <- resp:
		return true
	default:
		return false
	}
}

func (w *World) admit(req JoinRequest, tick uint64) {
	if old, dup := w.sessions[req.Name]; dup {
		if !old.Closed() {
			reply(req, JoinResponse{Code: protocol.ErrDuplicateName, Message: "name already online"})
			return
		}
		// A reconnect raced the sweep; save and drop the stale session first.
		w.sweepSessions(tick)
	}
	if len(w.sessions) >= w.tune.MaxSessions {
		reply(req, JoinResponse{Code: protocol.ErrServerFull, Message: "server full"})
		return
	}
	if req.Out == nil {
		reply(req, JoinResponse{Code: protocol.ErrInternal, Message: "no connection"})
		return
	}

	class := req.Class
	if req.Record != nil && req.Record.Class != "" {
		class = req.Record.Class
	}
	class = w.cat.Class(class).ID

	p := entity.NewPlayer(w.registry.NextID(), req.Name, class, mgl64.Vec2{}, w.tune.PlayerMaxHP)
	p.Player.Spawn = w.tune.World.Spawn
	if rec := req.Record; rec != nil {
		p.Pos = mgl64.Vec2{rec.X, rec.Y}
		if rec.HP > 0 {
			p.HP = min(rec.HP, p.MaxHP)
		}
		if rec.Spawn != [2]int{} {
			p.Player.Spawn = rec.Spawn
			p.Player.BedSpawn = rec.BedSpawn
		}
		inv := rec.Inventory
		p.Player.Inv = &inv
		if w.blockedAt(p) {
			p.Pos = w.standingPos(p.Player.Spawn, p.Size)
		}
	} else {
		p.Pos = w.standingPos(p.Player.Spawn, p.Size)
		for item, n := range w.tune.StarterItems {
			p.Player.Inv.Add(w.newStack(item, n, nil), w.engine.Limit)
		}
	}
	w.registry.Add(p)

	chat := rate.NewLimiter(rate.Limit(w.tune.Chat.PerSecond), w.tune.Chat.Burst)
	s := newSession(uuid.NewString(), req.Name, class, req.Out, chat)
	s.player = p
	s.admitted = tick

	s.SendNow(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Accepted:        true,
		SessionID:       s.ID,
		EntityID:        uint64(p.ID),
		TickRateHz:      w.tune.TickRateHz,
		ServerTick:      tick,
	})
	if !reply(req, JoinResponse{Accepted: true, Session: s}) {
		s.Close()
	}

	w.sessions[s.Name] = s
	w.order = append(w.order, s)
	w.publishSessions()
	w.logger.Printf("join: %s (%s) entity=%d", s.Name, class, p.ID)
}

// sweepSessions removes closed sessions, saving their players.
func (w *World) sweepSessions(tick uint64) {
	kept := w.order[:0]
	changed := false
	for _, s := range w.order {
		if !s.Closed() {
			kept = append(kept, s)
			continue
		}
		changed = true
		w.removeSession(s, tick)
	}
	for i := len(kept); i < len(w.order); i++ {
		w.order[i] = nil
	}
	w.order = kept
	if changed {
		w.publishSessions()
	}
}

func (w *World) removeSession(s *Session, tick uint64) {
	delete(w.sessions, s.Name)
	if s.player == nil {
		return
	}
	w.savePlayer(s, tick)
	w.despawn(s.player)
	w.logger.Printf("leave: %s entity=%d", s.Name, s.player.ID)
}

func (w *World) publishSessions() {
	out := make([]SessionInfo, 0, len(w.order))
	for _, s := range w.order {
		out = append(out, SessionInfo{
			ID: s.ID, Name: s.Name, Class: s.Class,
			EntityID: uint64(s.PlayerID()), Admitted: s.admitted, Synced: s.synced,
		})
	}
	w.infos.Store(&out)
}

func (w *World) expireBreaking(tick uint64) {
	for _, s := range w.order {
		st := s.breaking
		if blocks.Expired(&s.breaking, tick, w.tune.BreakingTimeoutTicks) {
			s.queueMsg(protocol.BreakingProgressMsg{
				Type:            protocol.TypeBreakingProgress,
				ProtocolVersion: protocol.Version,
				X:               st.X,
				Y:               st.Y,
				Stop:            true,
			})
		}
	}
}

// despawn schedules e for removal at the end of the tick.
func (w *World) despawn(e *entity.Entity) {
	if e == nil {
		return
	}
	if _, ok := w.despawnSet[e.ID]; ok {
		return
	}
	w.despawnSet[e.ID] = struct{}{}
	w.despawns = append(w.despawns, e)
}

func (w *World) compact() {
	for _, e := range w.despawns {
		w.registry.Remove(e)
	}
	w.despawns = w.despawns[:0]
	for k := range w.despawnSet {
		delete(w.despawnSet, k)
	}
}

func (w *World) publish(tick uint64) {
	w.registry.Snapshot().Each(func(e *entity.Entity) bool {
		e.Publish(tick)
		return true
	})
}

func (w *World) flushAll(tick uint64) {
	for _, s := range w.order {
		if !s.flush(tick) {
			w.logger.Printf("session %s: outbound queue full, closing", s.Name)
		}
		if s.initSent && !s.synced {
			s.synced = true
			w.publishSessions()
		}
	}
}

// newStack builds a stack, applying the crafting class bonus to tools.
func (w *World) newStack(item string, n int, class *catalogs.ClassDef) entity.Stack {
	st := entity.Stack{Item: item, Count: n}
	def, ok := w.cat.Item(item)
	if !ok || def.Kind != catalogs.KindTool {
		return st
	}
	st.TotalUses = def.Uses
	if class != nil && class.ToolUsesScale > 0 && class.ToolUsesScale != 1 {
		st.TotalUses = int(float64(def.Uses)*class.ToolUsesScale + 0.5)
		st.Bonus = true
	}
	return st
}

// standingPos puts an AABB of size with its feet on the bottom of tile t.
func (w *World) standingPos(t [2]int, size mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{float64(t[0]) + 0.5 - size.X()/2, float64(t[1]+1) - size.Y()}
}

func (w *World) actor(s *Session) *blocks.Actor {
	return &blocks.Actor{
		Name:      s.Name,
		Entity:    s.player,
		Inv:       s.player.Player.Inv,
		Class:     w.cat.Class(s.Class),
		UIBlocked: s.open != nil,
	}
}

// Shutdown saves every connected player. Call it after the tick loop stopped.
func (w *World) Shutdown() {
	tick := w.tick.Load()
	for _, s := range w.order {
		w.savePlayer(s, tick)
		s.Close()
	}
}
