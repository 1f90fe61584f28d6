package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tuning"
)

type spawnRule struct {
	Tag    string
	Weight int
	Max    int
	Size   mgl64.Vec2
}

// spawner keeps a capped mob population around connected players.
type spawner struct {
	cfg   tuning.MobTuning
	rules []spawnRule
}

func newSpawner(cfg tuning.MobTuning, cat *catalogs.Catalogs) *spawner {
	sp := &spawner{cfg: cfg}
	for id, def := range cat.Mobs.ByID {
		if def.SpawnWeight <= 0 {
			continue
		}
		sp.rules = append(sp.rules, spawnRule{
			Tag: id, Weight: def.SpawnWeight, Max: def.SpawnMax,
			Size: mgl64.Vec2{def.Size[0], def.Size[1]},
		})
	}
	sort.Slice(sp.rules, func(i, j int) bool { return sp.rules[i].Tag < sp.rules[j].Tag })
	return sp
}

func (sp *spawner) Name() string { return "spawner" }

func (sp *spawner) Tick(ctx *TickContext) {
	counts := map[string]int{}
	total := 0
	ctx.Registry.Snapshot().Each(func(e *entity.Entity) bool {
		if e.Kind != entity.KindMob {
			return true
		}
		if sp.tooFar(e, ctx.Online) {
			ctx.Despawn(e)
			return true
		}
		counts[e.Mob.Tag]++
		total++
		return true
	})

	every := uint64(sp.cfg.SpawnEveryTicks)
	if every == 0 || ctx.Tick%every != 0 || len(ctx.Players) == 0 || total >= sp.cfg.Cap {
		return
	}
	rule, ok := sp.pick(ctx, counts)
	if !ok {
		return
	}
	anchor := ctx.Players[ctx.Rand.Intn(len(ctx.Players))]
	pos, ok := sp.place(ctx, anchor, rule.Size)
	if !ok {
		return
	}
	if _, ok := ctx.Factories.Spawn(ctx.Registry, rule.Tag, pos); !ok {
		ctx.Logger.Printf("spawner: no factory for %s", rule.Tag)
	}
}

func (sp *spawner) tooFar(e *entity.Entity, players []*entity.Entity) bool {
	lim := float64(sp.cfg.DespawnDist)
	for _, p := range players {
		if p.Center().Sub(e.Center()).Len() <= lim {
			return false
		}
	}
	return true
}

// pick chooses a rule by weight among those under their own max.
func (sp *spawner) pick(ctx *TickContext, counts map[string]int) (spawnRule, bool) {
	sum := 0
	for _, r := range sp.rules {
		if r.Max <= 0 || counts[r.Tag] < r.Max {
			sum += r.Weight
		}
	}
	if sum == 0 {
		return spawnRule{}, false
	}
	n := ctx.Rand.Intn(sum)
	for _, r := range sp.rules {
		if r.Max > 0 && counts[r.Tag] >= r.Max {
			continue
		}
		if n < r.Weight {
			return r, true
		}
		n -= r.Weight
	}
	return spawnRule{}, false
}

// place finds the surface in a column a random distance from anchor.
func (sp *spawner) place(ctx *TickContext, anchor *entity.Entity, size mgl64.Vec2) (mgl64.Vec2, bool) {
	span := sp.cfg.SpawnMaxDist - sp.cfg.SpawnMinDist + 1
	if span < 1 {
		span = 1
	}
	dx := sp.cfg.SpawnMinDist + ctx.Rand.Intn(span)
	if ctx.Rand.Intn(2) == 0 {
		dx = -dx
	}
	x := int(anchor.Center().X()) + dx
	if !ctx.Map.InBounds(x, 0) {
		return mgl64.Vec2{}, false
	}
	h := ctx.Map.Height()
	for y := 1; y < h; y++ {
		if !ctx.Cat.IsSolid(ctx.Map.Tile(x, y)) {
			continue
		}
		pos := mgl64.Vec2{float64(x) + 0.5 - size.X()/2, float64(y) - size.Y()}
		if pos.Y() < 0 {
			return mgl64.Vec2{}, false
		}
		return pos, true
	}
	return mgl64.Vec2{}, false
}
