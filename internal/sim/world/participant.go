package world

import (
	"log"
	"math/rand"

	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
)

// TickContext is what a Participant sees during its slot of the tick.
type TickContext struct {
	Tick      uint64
	Map       tiles.Map
	Cat       *catalogs.Catalogs
	Registry  *entity.Registry
	Factories *entity.Factories
	Rand      *rand.Rand
	Logger    *log.Logger

	// Players are the live player entities of synced sessions.
	Players []*entity.Entity
	// Online holds every connected player entity, dead or not yet synced.
	Online []*entity.Entity

	world *World
}

// Despawn removes e at the end of the tick. Repeated calls are harmless.
func (c *TickContext) Despawn(e *entity.Entity) { c.world.despawn(e) }

// Participant is a per-tick system wired in at construction (mob spawner,
// furnaces). Extra game modes plug in the same way.
type Participant interface {
	Name() string
	Tick(ctx *TickContext)
}

func (w *World) tickContext(tick uint64) *TickContext {
	players := make([]*entity.Entity, 0, len(w.sessions))
	online := make([]*entity.Entity, 0, len(w.sessions))
	for _, s := range w.order {
		if s.player == nil {
			continue
		}
		online = append(online, s.player)
		if s.synced && s.player.Alive() {
			players = append(players, s.player)
		}
	}
	return &TickContext{
		Tick:      tick,
		Map:       w.tiles,
		Cat:       w.cat,
		Registry:  w.registry,
		Factories: w.factories,
		Rand:      w.rng,
		Logger:    w.logger,
		Players:   players,
		Online:    online,
		world:     w,
	}
}
