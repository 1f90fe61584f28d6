package world

import (
	"time"

	"tilecraft.ai/internal/sim/entity"
)

// Stats is a per-tick summary for /metrics and the observer.
type Stats struct {
	Tick       uint64        `json:"tick"`
	Sessions   int           `json:"sessions"`
	Synced     int           `json:"synced"`
	Entities   int           `json:"entities"`
	Players    int           `json:"players"`
	Mobs       int           `json:"mobs"`
	Items      int           `json:"items"`
	Containers int           `json:"containers"`
	StepTime   time.Duration `json:"step_ns"`
	MaxStep    time.Duration `json:"max_step_ns"`
}

func (w *World) recordStats(tick uint64, step time.Duration) {
	prev := w.stats.Load()
	st := Stats{
		Tick:       tick,
		Sessions:   len(w.order),
		Containers: w.containers.Len(),
		StepTime:   step,
		MaxStep:    max(prev.MaxStep, step),
	}
	for _, s := range w.order {
		if s.synced {
			st.Synced++
		}
	}
	w.registry.Snapshot().Each(func(e *entity.Entity) bool {
		st.Entities++
		switch e.Kind {
		case entity.KindPlayer:
			st.Players++
		case entity.KindMob:
			st.Mobs++
		case entity.KindItem:
			st.Items++
		}
		return true
	})
	w.stats.Store(&st)
}
