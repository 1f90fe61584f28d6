package main

import (
	"fmt"
	"io"
	"net/http"

	"tilecraft.ai/internal/persistence/store"
	"tilecraft.ai/internal/sim/scheduler"
	"tilecraft.ai/internal/sim/world"
)

// metricsSource reads live counters; each func must be safe to call from
// an HTTP goroutine.
type metricsSource struct {
	World   string
	Stats   func() world.Stats
	Sched   func() scheduler.Stats
	Online  func() int
	Store   func() store.Stats
	Dropped func() uint64
}

func metricsHandler(src metricsSource) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, src)
	}
}

func writeMetrics(out io.Writer, src metricsSource) {
	m := src.Stats()
	sch := src.Sched()
	id := src.World

	gauge := func(name, help string, v any) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s gauge\n", name)
		fmt.Fprintf(out, "%s{world=%q} %v\n", name, id, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s counter\n", name)
		fmt.Fprintf(out, "%s{world=%q} %d\n", name, id, v)
	}

	gauge("tilecraft_world_tick", "Current world tick.", m.Tick)
	gauge("tilecraft_world_sessions", "Admitted sessions.", m.Sessions)
	gauge("tilecraft_world_synced_sessions", "Sessions that received WORLD_INIT.", m.Synced)
	gauge("tilecraft_ws_connections", "Open websocket connections.", src.Online())
	gauge("tilecraft_world_containers", "Live container states.", m.Containers)

	fmt.Fprintf(out, "# HELP tilecraft_world_entities Entities by kind.\n")
	fmt.Fprintf(out, "# TYPE tilecraft_world_entities gauge\n")
	fmt.Fprintf(out, "tilecraft_world_entities{world=%q,kind=%q} %d\n", id, "all", m.Entities)
	fmt.Fprintf(out, "tilecraft_world_entities{world=%q,kind=%q} %d\n", id, "player", m.Players)
	fmt.Fprintf(out, "tilecraft_world_entities{world=%q,kind=%q} %d\n", id, "mob", m.Mobs)
	fmt.Fprintf(out, "tilecraft_world_entities{world=%q,kind=%q} %d\n", id, "item", m.Items)

	gauge("tilecraft_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", float64(m.StepTime.Microseconds())/1000))
	gauge("tilecraft_world_max_step_ms", "Slowest tick step since start in milliseconds.", fmt.Sprintf("%.3f", float64(m.MaxStep.Microseconds())/1000))
	counter("tilecraft_scheduler_ticks_total", "Ticks run by the scheduler.", sch.Ticks)
	counter("tilecraft_scheduler_overruns_total", "Ticks that exceeded their interval.", sch.Overruns)
	counter("tilecraft_scheduler_faults_total", "Ticks that panicked.", sch.Faults)
	counter("tilecraft_scheduler_errors_total", "Ticks that returned an error.", sch.Errors)

	if src.Store != nil {
		st := src.Store()
		counter("tilecraft_store_written_total", "Player records written.", st.Written)
		counter("tilecraft_store_dropped_total", "Player records dropped on a full queue.", st.Dropped)
		gauge("tilecraft_store_queue_depth", "Pending player writes.", st.QueueDepth)
	}
	if src.Dropped != nil {
		counter("tilecraft_audit_dropped_total", "Block mutations dropped on a full audit queue.", src.Dropped())
	}
}
