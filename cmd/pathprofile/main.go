package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"terrainroute/internal/config"
	"terrainroute/internal/pathfinding"
	"terrainroute/internal/route"
	"terrainroute/internal/snapshot"
	"terrainroute/internal/terrain"
)

type pathJob struct {
	start terrain.Cell
	goal  terrain.Cell
}

func main() {
	var (
		configPath    = flag.String("config", "", "optional route server configuration to take terrain and search settings from")
		totalRequests = flag.Int("requests", 2000, "number of route requests to issue")
		concurrency   = flag.Int("concurrency", runtime.NumCPU(), "number of concurrent workers")
		width         = flag.Int("width", 0, "override terrain width")
		depth         = flag.Int("depth", 0, "override terrain depth")
		radius        = flag.Float64("radius", 0, "override mask radius")
		timeout       = flag.Duration("timeout", 0, "override per-request search timeout")
		precompute    = flag.Bool("precompute", true, "build the mask cache before profiling")
		seed          = flag.Int64("seed", 1337, "random seed for start/goal selection")
		snapshotPath  = flag.String("snapshot", "", "write the generated terrain snapshot to this path")
	)
	flag.Parse()

	if *totalRequests <= 0 {
		fmt.Fprintln(os.Stderr, "requests must be positive")
		os.Exit(1)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be positive")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *width > 0 {
		cfg.Terrain.Width = *width
	}
	if *depth > 0 {
		cfg.Terrain.Depth = *depth
	}
	if *radius > 0 {
		cfg.Search.MaskRadius = *radius
	}
	if *timeout > 0 {
		cfg.Search.Timeout = config.Duration(*timeout)
	}

	field, err := terrain.NewHeightField(cfg.Terrain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "height field: %v\n", err)
		os.Exit(1)
	}
	gridStart := time.Now()
	grid, err := terrain.NewGrid(field, cfg.Terrain.Width, cfg.Terrain.Depth, cfg.Terrain.HeightScale)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grid: %v\n", err)
		os.Exit(1)
	}
	gridDuration := time.Since(gridStart)

	var snapshotSize int64
	if *snapshotPath != "" {
		if err := snapshot.Write(*snapshotPath, snapshot.FromGrid(grid, cfg.Terrain)); err != nil {
			fmt.Fprintf(os.Stderr, "write snapshot: %v\n", err)
			os.Exit(1)
		}
		if info, err := os.Stat(*snapshotPath); err == nil {
			snapshotSize = info.Size()
		}
	}

	metrics := &pathfinding.NavigatorMetrics{}
	ctx := pathfinding.ContextWithProfiler(context.Background(), metrics.Profiler())

	var masks *pathfinding.MaskCache
	if *precompute {
		masks, err = pathfinding.BuildMaskCache(ctx, grid, cfg.Search.MaskRadius, cfg.Search.CacheWorkers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "build mask cache: %v\n", err)
			os.Exit(1)
		}
	}
	navigator, err := pathfinding.NewNavigator(grid, masks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "navigator: %v\n", err)
		os.Exit(1)
	}

	profile := pathfinding.SearchProfile{
		MaskRadius: cfg.Search.MaskRadius,
		Timeout:    cfg.Search.Timeout.Duration(),
		Cost: pathfinding.CostModel{
			DistInfluence:  cfg.Search.DistInfluence,
			SlopeInfluence: cfg.Search.SlopeInfluence,
			WaterInfluence: cfg.Search.WaterInfluence,
			WaterLevel:     cfg.Search.WaterLevel,
		},
	}

	jobs := make(chan pathJob)
	go func() {
		defer close(jobs)
		rng := rand.New(rand.NewSource(*seed))
		for i := 0; i < *totalRequests; i++ {
			start := grid.CellAt(rng.Intn(grid.Len()))
			goal := grid.CellAt(rng.Intn(grid.Len()))
			for start == goal {
				goal = grid.CellAt(rng.Intn(grid.Len()))
			}
			jobs <- pathJob{start: start, goal: goal}
		}
	}()

	var (
		totalWaypoints atomic.Int64
		totalLength    atomic.Int64 // millimetres of planar route length
		totalCost      atomic.Int64 // thousandths of cost units
	)

	group, groupCtx := errgroup.WithContext(ctx)
	startWall := time.Now()
	for i := 0; i < *concurrency; i++ {
		group.Go(func() error {
			for job := range jobs {
				found, err := navigator.FindRoute(groupCtx, job.start, job.goal, profile)
				if err != nil {
					return fmt.Errorf("route %s -> %s: %w", job.start, job.goal, err)
				}
				if found.Status != pathfinding.StatusFound {
					continue
				}
				planar, _ := route.Length(found.Waypoints)
				totalWaypoints.Add(int64(len(found.Waypoints)))
				totalLength.Add(int64(planar * 1000))
				totalCost.Add(int64(found.Cost * 1000))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "profile: %v\n", err)
		os.Exit(1)
	}
	wallDuration := time.Since(startWall)

	m := metrics.Snapshot()
	requests := float64(m.Searches())
	avg := func(total int64) float64 {
		if requests == 0 {
			return 0
		}
		return float64(total) / requests
	}
	perFound := func(total int64, scale float64) float64 {
		if m.Found == 0 {
			return 0
		}
		return float64(total) / scale / float64(m.Found)
	}
	hitRatio := 0.0
	if m.MaskHits+m.MaskMisses > 0 {
		hitRatio = float64(m.MaskHits) / float64(m.MaskHits+m.MaskMisses) * 100
	}
	avgDuration := time.Duration(0)
	if requests > 0 {
		avgDuration = time.Duration(float64(m.SearchTime) / requests)
	}

	fmt.Println("== Terrain Route Profile ==")
	fmt.Printf("Grid: %dx%d (%s nodes, built in %s)\n", grid.Width()+1, grid.Depth()+1, humanize.Comma(int64(grid.Len())), gridDuration)
	fmt.Printf("Fingerprint: %s\n", grid.Fingerprint())
	fmt.Printf("Mask radius: %.2f\n", profile.MaskRadius)
	if masks != nil {
		fmt.Printf("Mask cache: %s entries, built in %s\n", humanize.Comma(int64(masks.Entries())), m.MaskBuildTime)
	} else {
		fmt.Println("Mask cache: disabled")
	}
	if snapshotSize > 0 {
		fmt.Printf("Snapshot: %s (%s)\n", *snapshotPath, humanize.Bytes(uint64(snapshotSize)))
	}
	fmt.Printf("Requests: %s\n", humanize.Comma(int64(*totalRequests)))
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Found: %s, Not found: %s, Timed out: %s\n", humanize.Comma(m.Found), humanize.Comma(m.NotFound), humanize.Comma(m.TimedOut))
	fmt.Printf("Average waypoints: %.2f\n", perFound(totalWaypoints.Load(), 1))
	fmt.Printf("Average planar length: %.2f\n", perFound(totalLength.Load(), 1000))
	fmt.Printf("Average cost: %.2f\n", perFound(totalCost.Load(), 1000))
	fmt.Printf("Average per-route duration: %s\n", avgDuration)
	fmt.Printf("Wall clock duration: %s\n", wallDuration)
	fmt.Printf("Average nodes expanded: %.2f\n", avg(m.NodesExpanded))
	fmt.Printf("Average heuristic evaluations: %.2f\n", avg(m.HeuristicEvaluations))
	fmt.Printf("Reopened nodes: %s\n", humanize.Comma(m.Reopens))
	fmt.Printf("Mask hit ratio: %.2f%% (%s hits, %s misses)\n", hitRatio, humanize.Comma(m.MaskHits), humanize.Comma(m.MaskMisses))
}
