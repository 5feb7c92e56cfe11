package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"supersorting.ai/internal/config"
	"supersorting.ai/internal/events"
	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/httpapi"
	"supersorting.ai/internal/pathfinding"
	"supersorting.ai/internal/persistence/indexdb"
	persistlog "supersorting.ai/internal/persistence/log"
	"supersorting.ai/internal/persistence/snapshot"
	"supersorting.ai/internal/routing"
	"supersorting.ai/internal/services"
	"supersorting.ai/internal/tick"
	"supersorting.ai/internal/transport/observer"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to operator.yaml (empty for defaults)")
	flag.Parse()

	logger := log.New(os.Stdout, "[operator] ", log.LstdFlags|log.Lmicroseconds)

	path := *configPath
	if path == config.DefaultPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Printf("%s not found; using defaults", path)
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := pathfinding.Verify(cfg.Pathfinding()); err != nil {
		logger.Fatalf("pathfinding config: %v", err)
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	tickLog := persistlog.NewTickLogger(logDir)
	eventLog := persistlog.NewEventLogger(logDir)
	defer tickLog.Close()
	defer eventLog.Close()

	fanout := events.NewFanout(logger).Add(tickLog).Add(eventLog)

	// Optional read-model index; nil disables /data/ticks and /data/events.
	var idx httpapi.Index
	switch strings.ToLower(cfg.Index.Backend) {
	case "none":
		logger.Printf("index backend disabled")
	default:
		db, err := indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer db.Close()
		fanout.Add(db)
		idx = db
	}

	if addr := strings.TrimSpace(cfg.Events.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Printf("redis %s: %v (publishing anyway)", addr, err)
		}
		cancel()
		pub := events.NewRedisPublisher(rdb, cfg.Events.Channel, logger) // owns rdb
		defer pub.Close()
		fanout.Add(pub)
	}

	obs := observer.NewServer(logger)
	fanout.Add(obs)

	st, err := facility.NewState(cfg.Facility())
	if err != nil {
		logger.Fatalf("facility: %v", err)
	}
	store := facility.NewStore(st,
		facility.WithEventSink(fanout),
		facility.WithInvariantChecks(cfg.Debug.CheckInvariants),
	)

	planner := routing.NewPlanner(cfg.Pathfinding())
	chain := services.Chain(services.ChainConfig{
		Planner:          planner,
		Logger:           logger,
		HeartbeatTimeout: cfg.Expiry.AgentHeartbeat.D(),
		Defrag: services.DefragConfig{
			Enabled:  cfg.Defrag.Enabled,
			Home:     grid.FromArray(cfg.Defrag.Home),
			MaxMoves: cfg.Defrag.MaxMoves,
		},
	})
	sched := tick.New(store, chain, tick.WithLogger(logger), tick.WithTickLogger(fanout))

	ctx, cancel := signalContext()
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("scheduler stopped: %v", err)
		}
	}()

	snapDir := filepath.Join(cfg.DataDir, "snapshots")
	api := httpapi.New(httpapi.Options{
		Store:   store,
		Planner: planner,
		Config:  cfg,
		Metrics: sched.Metrics,
		Index:   idx,
		Stream:  obs.Handler(),
		Logger:  logger,

		SnapshotDir: snapDir,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (grid %dx%d, %d api keys)", cfg.Addr(), cfg.Grid.Width, cfg.Grid.Height, len(cfg.Auth.APIKeys))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	// No Update may publish into the sinks once the deferred closes run.
	<-shutdownDone
	<-schedDone

	// Final export for post-mortem inspection.
	var snap facility.Snapshot
	_ = store.View(func(st *facility.State) error {
		snap = st.Snapshot(time.Now())
		return nil
	})
	final := filepath.Join(snapDir, snapshot.FileName(snap.At))
	if err := snapshot.Write(final, snap); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot %s", final)
	}
	logger.Printf("stopped after %d ticks", sched.Metrics().Tick)
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
