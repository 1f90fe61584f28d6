package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	persistlog "tilecraft.ai/internal/persistence/log"
	"tilecraft.ai/internal/persistence/snapshot"
	"tilecraft.ai/internal/persistence/store"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/scheduler"
	"tilecraft.ai/internal/sim/tuning"
	"tilecraft.ai/internal/sim/world"
	"tilecraft.ai/internal/transport/observer"
	"tilecraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id (data subdirectory)")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite account/player store")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)
	fatalf := func(format string, args ...any) {
		writeCrashReport(*dataDir, fmt.Sprintf(format, args...))
		logger.Fatalf(format, args...)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Bind first; a taken port is a startup fault.
	ln, err := listen(*addr)
	if err != nil {
		fatalf("%v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, err = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
		if err != nil {
			fatalf("find snapshot: %v", err)
		}
	}

	var st *store.SQLiteStore
	if !*disableDB {
		st, err = store.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"), logger)
		if err != nil {
			fatalf("open store: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(worldDir)
	snapCh := make(chan snapshot.WorldV1, 2)

	cfg := world.Config{
		Tuning:       tune,
		Seed:         *seed,
		Audit:        auditLog,
		SnapshotSink: snapCh,
	}
	if st != nil {
		cfg.Store = st
	}
	var startTick uint64
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			fatalf("read snapshot: %v", err)
		}
		cfg.Snapshot = &snap
		cfg.Seed = snap.Seed
		startTick = snap.Header.Tick
	}

	w, err := world.New(cfg, cats, logger)
	if err != nil {
		fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), startTick)
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		writeSnapshots(ctx, worldDir, snapCh, logger)
	}()

	sched := scheduler.New(scheduler.Config{RateHz: tune.TickRateHz, StartTick: startTick}, w, logger)
	sched.Start(ctx)

	wsOpts := ws.Options{
		AuthTimeout:      time.Duration(tune.AuthTimeoutMs) * time.Millisecond,
		OutQueue:         tune.MaxOutQueue,
		InboundPerSecond: tune.InboundPerSecond,
	}
	if st != nil {
		wsOpts.Auth = st
	}
	wsSrv := ws.NewServer(w, logger, wsOpts)
	go wsSrv.Maintain(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(metricsSource{
		World:   *worldID,
		Stats:   w.Stats,
		Sched:   sched.Stats,
		Online:  wsSrv.Online,
		Store:   st.Stats,
		Dropped: auditLog.Dropped,
	}))

	enableAdminHTTP := envBool("TC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("TC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		observer.NewServer(w, logger).Register(mux)
	} else {
		logger.Printf("admin endpoints disabled (TC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (TC_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			writeCrashReport(*dataDir, fmt.Sprintf("serve: %v", err))
			logger.Printf("serve: %v", err)
			exitCode = 1
		}
		cancel()
	}

	logger.Printf("shutting down")
	sched.Stop()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	_ = srv.Shutdown(ctx2)
	cancel2()
	wsSrv.CloseAll()
	w.Shutdown()
	<-snapDone
	final := w.ExportSnapshot(w.CurrentTick())
	if err := snapshot.WriteSnapshot(filepath.Join(worldDir, "snapshots", snapshot.FileName(final.Header.Tick)), final); err != nil {
		logger.Printf("final snapshot: %v", err)
	}
	if err := auditLog.Close(); err != nil {
		logger.Printf("audit close: %v", err)
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logger.Printf("store close: %v", err)
		}
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// writeSnapshots persists snapshots handed over by the tick until ctx ends.
func writeSnapshots(ctx context.Context, worldDir string, ch <-chan snapshot.WorldV1, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(worldDir, "snapshots", snapshot.FileName(snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			logger.Printf("snapshot tick=%d path=%s", snap.Header.Tick, path)
		}
	}
}

func writeCrashReport(dataDir, msg string) {
	path := filepath.Join(dataDir, fmt.Sprintf("crash-%d.txt", time.Now().Unix()))
	body := fmt.Sprintf("%s\n\n%s", msg, debug.Stack())
	_ = os.WriteFile(path, []byte(body), 0o644)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
