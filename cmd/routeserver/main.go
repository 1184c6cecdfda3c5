package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"terrainroute/internal/config"
	"terrainroute/internal/planner"
	"terrainroute/internal/server"
	"terrainroute/internal/store"
)

func main() {
	var (
		configPath  string
		restore     bool
		statsPeriod time.Duration
	)
	flag.StringVar(&configPath, "config", "routeserver.yml", "configuration file for the route server")
	flag.BoolVar(&restore, "restore", false, "load terrain from the configured snapshot instead of regenerating it")
	flag.DurationVar(&statsPeriod, "stats", time.Minute, "interval between navigator metric log lines (0 disables)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := config.WriteDefault(configPath); err != nil {
				fatal("write default config", err)
			}
			slog.Info("no configuration found, default configuration written", "path", configPath)
			cfg, err = config.Load(configPath)
		}
		if err != nil {
			fatal("load config", err)
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	opts := []planner.Option{planner.WithLogger(slog.Default())}
	var history server.History
	if cfg.Store.Path != "" {
		st, err := store.Open(ctx, cfg.Store.Path)
		if err != nil {
			fatal("open route store", err)
		}
		defer st.Close()
		opts = append(opts, planner.WithRecorder(st))
		history = st
	}
	if cfg.Snapshot.Path != "" && !restore {
		opts = append(opts, planner.WithSnapshotPath(cfg.Snapshot.Path))
	}

	p, err := planner.New(ctx, cfg, opts...)
	if err != nil {
		fatal("initialise planner", err)
	}
	if restore {
		if cfg.Snapshot.Path == "" {
			fatal("restore terrain", errors.New("snapshot.path is not configured"))
		}
		if _, err := p.Restore(ctx, cfg.Snapshot.Path, cfg.Search.MaskRadius); err != nil {
			fatal("restore terrain", err)
		}
	}

	srv, err := server.New(cfg.Server, p, history, slog.Default())
	if err != nil {
		fatal("initialise route server", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx)
	})
	if statsPeriod > 0 {
		group.Go(func() error {
			logStats(groupCtx, p, statsPeriod)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		fatal("route server exited", err)
	}
}

func logStats(ctx context.Context, p *planner.Planner, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := p.Metrics()
			slog.Info("navigator stats",
				"searches", m.Searches(),
				"found", m.Found,
				"not_found", m.NotFound,
				"timed_out", m.TimedOut,
				"nodes_expanded", m.NodesExpanded,
				"reopens", m.Reopens,
				"mask_hits", m.MaskHits,
				"mask_misses", m.MaskMisses,
			)
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

// parseLogLevel converts a configured level name to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
