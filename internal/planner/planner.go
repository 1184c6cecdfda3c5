// Package planner owns a route planning session: the terrain, its mask
// cache and the navigator built over them, plus the bookkeeping around each
// search.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"terrainroute/internal/config"
	"terrainroute/internal/pathfinding"
	"terrainroute/internal/snapshot"
	"terrainroute/internal/store"
	"terrainroute/internal/terrain"
)

// Snapshot is an immutable view of the session terrain. Searches load one
// snapshot and use it to completion; rebuilds publish a new one.
type Snapshot struct {
	Terrain config.TerrainConfig
	Field   *terrain.HeightField
	Grid    *terrain.Grid
	Masks   *pathfinding.MaskCache
	BuiltAt time.Time

	// MaskRadius is the radius the snapshot was built for and the radius
	// requests search with unless they override it.
	MaskRadius float64

	navigator *pathfinding.Navigator
	uncached  *pathfinding.Navigator
}

// Navigator returns a navigator for radius. It uses the mask cache when the
// cache was built for that radius and generates masks on demand otherwise.
func (s *Snapshot) Navigator(radius float64) *pathfinding.Navigator {
	if s.Masks != nil && s.Masks.Radius() == radius {
		return s.navigator
	}
	return s.uncached
}

// Recorder persists search outcomes. *store.Store satisfies it.
type Recorder interface {
	SaveRoute(ctx context.Context, rec store.Record) (store.Record, error)
}

// Planner serves route requests against the current snapshot. It is safe
// for concurrent use.
type Planner struct {
	search       config.SearchConfig
	snapshotPath string
	logger       *slog.Logger
	recorder     Recorder
	metrics      *pathfinding.NavigatorMetrics

	current   atomic.Pointer[Snapshot]
	rebuildMu sync.Mutex
}

type Option func(*Planner)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// WithRecorder stores every search outcome through r.
func WithRecorder(r Recorder) Option {
	return func(p *Planner) { p.recorder = r }
}

// WithSnapshotPath writes a terrain snapshot to path after every rebuild.
func WithSnapshotPath(path string) Option {
	return func(p *Planner) { p.snapshotPath = path }
}

// New validates cfg, builds the initial snapshot and returns a ready planner.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Planner, error) {
	if cfg == nil {
		return nil, errors.New("planner: nil config")
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pathfinding.ErrInvalidConfiguration, err)
	}
	p := &Planner{
		search:  cfg.Search,
		logger:  slog.Default(),
		metrics: &pathfinding.NavigatorMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if _, err := p.Rebuild(ctx, cfg.Terrain, cfg.Search.MaskRadius); err != nil {
		return nil, err
	}
	return p, nil
}

// Snapshot returns the terrain currently served.
func (p *Planner) Snapshot() *Snapshot {
	return p.current.Load()
}

// Metrics reports navigator counters accumulated across all searches and
// mask builds of this planner.
func (p *Planner) Metrics() pathfinding.MetricsSnapshot {
	return p.metrics.Snapshot()
}

// Rebuild regenerates the height field, grid and mask cache from terrainCfg
// and publishes them. radius becomes the default search radius of later
// requests. In-flight searches finish on the snapshot they started with.
// Concurrent rebuilds are serialised.
func (p *Planner) Rebuild(ctx context.Context, terrainCfg config.TerrainConfig, radius float64) (*Snapshot, error) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	start := time.Now()
	field, err := terrain.NewHeightField(terrainCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pathfinding.ErrInvalidConfiguration, err)
	}
	grid, err := terrain.NewGrid(field, terrainCfg.Width, terrainCfg.Depth, terrainCfg.HeightScale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pathfinding.ErrInvalidConfiguration, err)
	}
	snap, err := p.publish(ctx, terrainCfg, field, grid, radius)
	if err != nil {
		return nil, err
	}
	p.logger.Info("terrain rebuilt",
		"fingerprint", grid.Fingerprint().String(),
		"nodes", grid.Len(),
		"mask_radius", radius,
		"duration", time.Since(start),
	)
	return snap, nil
}

// Restore publishes the grid stored in a terrain snapshot file, skipping
// noise generation. The file fingerprint must match its heights.
func (p *Planner) Restore(ctx context.Context, path string, radius float64) (*Snapshot, error) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	stored, err := snapshot.Read(path)
	if err != nil {
		return nil, err
	}
	grid, err := stored.Grid()
	if err != nil {
		return nil, err
	}
	field, err := terrain.NewHeightField(stored.Terrain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pathfinding.ErrInvalidConfiguration, err)
	}
	// The snapshot path is left alone so a restore never rewrites its source.
	snap, err := p.install(ctx, stored.Terrain, field, grid, radius)
	if err != nil {
		return nil, err
	}
	p.logger.Info("terrain restored", "path", path, "fingerprint", grid.Fingerprint().String())
	return snap, nil
}

func (p *Planner) publish(ctx context.Context, terrainCfg config.TerrainConfig, field *terrain.HeightField, grid *terrain.Grid, radius float64) (*Snapshot, error) {
	snap, err := p.install(ctx, terrainCfg, field, grid, radius)
	if err != nil {
		return nil, err
	}
	if p.snapshotPath != "" {
		if err := snapshot.Write(p.snapshotPath, snapshot.FromGrid(grid, terrainCfg)); err != nil {
			p.logger.Warn("terrain snapshot not written", "path", p.snapshotPath, "err", err)
		}
	}
	return snap, nil
}

func (p *Planner) install(ctx context.Context, terrainCfg config.TerrainConfig, field *terrain.HeightField, grid *terrain.Grid, radius float64) (*Snapshot, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: mask radius must be positive, got %v", pathfinding.ErrInvalidConfiguration, radius)
	}
	snap := &Snapshot{Terrain: terrainCfg, MaskRadius: radius, Field: field, Grid: grid, BuiltAt: time.Now()}
	if p.search.PrecomputeMasks {
		ctx = pathfinding.ContextWithProfiler(ctx, p.metrics.Profiler())
		masks, err := pathfinding.BuildMaskCache(ctx, grid, radius, p.search.CacheWorkers)
		if err != nil {
			return nil, err
		}
		snap.Masks = masks
		p.logger.Debug("mask cache built", "entries", masks.Entries(), "duration", masks.BuildTime())
	}
	var err error
	if snap.navigator, err = pathfinding.NewNavigator(grid, snap.Masks); err != nil {
		return nil, err
	}
	if snap.uncached, err = pathfinding.NewNavigator(grid, nil); err != nil {
		return nil, err
	}
	p.current.Store(snap)
	return snap, nil
}
