package pathfinding

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"terrainroute/internal/terrain"
)

// GenerateMask returns every node other than origin whose squared 3D
// distance to origin is strictly below radius². Nodes are listed in
// row-major order. Only the coordinate box |dRow|,|dCol| < radius is
// scanned, since no node outside it can qualify.
func GenerateMask(grid *terrain.Grid, origin terrain.Cell, radius float64) []terrain.Node {
	return appendMask(nil, grid, origin, radius)
}

func appendMask(dst []terrain.Node, grid *terrain.Grid, origin terrain.Cell, radius float64) []terrain.Node {
	if grid == nil || !grid.Contains(origin) || !(radius > 0) {
		return dst
	}
	limit := radius * radius
	originHeight := grid.HeightAt(origin)
	span := maskSpan(radius)

	minRow := max(origin.Row-span, 0)
	maxRow := min(origin.Row+span, grid.Width())
	minCol := max(origin.Col-span, 0)
	maxCol := min(origin.Col+span, grid.Depth())

	for row := minRow; row <= maxRow; row++ {
		dr := float64(row - origin.Row)
		for col := minCol; col <= maxCol; col++ {
			if row == origin.Row && col == origin.Col {
				continue
			}
			dc := float64(col - origin.Col)
			cell := terrain.Cell{Row: row, Col: col}
			height := grid.HeightAt(cell)
			dh := height - originHeight
			if dr*dr+dc*dc+dh*dh < limit {
				dst = append(dst, terrain.Node{Cell: cell, Height: height})
			}
		}
	}
	return dst
}

// maskSpan is the largest integer offset strictly below radius.
func maskSpan(radius float64) int {
	span := int(math.Ceil(radius)) - 1
	if span < 0 {
		return 0
	}
	return span
}

// MaskCache is an immutable snapshot of the mask of every node in a grid for
// one radius. It records the grid fingerprint it was built from; a changed
// grid or radius requires a new cache.
type MaskCache struct {
	radius      float64
	fingerprint terrain.Fingerprint
	width       int
	depth       int
	offsets     []int32
	nodes       []terrain.Node
	buildTime   time.Duration
}

// BuildMaskCache computes the mask of every node in grid. Rows are split
// across workers goroutines; workers <= 0 selects GOMAXPROCS.
func BuildMaskCache(ctx context.Context, grid *terrain.Grid, radius float64, workers int) (*MaskCache, error) {
	if grid == nil {
		return nil, fmt.Errorf("%w: nil grid", ErrInvalidConfiguration)
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: mask radius must be positive, got %v", ErrInvalidConfiguration, radius)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	rows := grid.Width() + 1
	rowMasks := make([][][]terrain.Node, rows)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for row := 0; row < rows; row++ {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			masks := make([][]terrain.Node, grid.Depth()+1)
			for col := range masks {
				masks[col] = GenerateMask(grid, terrain.Cell{Row: row, Col: col}, radius)
			}
			rowMasks[row] = masks
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("build mask cache: %w", err)
	}

	total := 0
	for _, masks := range rowMasks {
		for _, mask := range masks {
			total += len(mask)
		}
	}
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("%w: mask cache would hold %d entries", ErrInvalidConfiguration, total)
	}

	cache := &MaskCache{
		radius:      radius,
		fingerprint: grid.Fingerprint(),
		width:       grid.Width(),
		depth:       grid.Depth(),
		offsets:     make([]int32, 0, grid.Len()+1),
		nodes:       make([]terrain.Node, 0, total),
	}
	cache.offsets = append(cache.offsets, 0)
	for _, masks := range rowMasks {
		for _, mask := range masks {
			cache.nodes = append(cache.nodes, mask...)
			cache.offsets = append(cache.offsets, int32(len(cache.nodes)))
		}
	}
	cache.buildTime = time.Since(start)
	if profiler := profilerFromContext(ctx); profiler != nil {
		profiler.RecordMaskBuild(cache.buildTime)
	}
	return cache, nil
}

// Radius is the radius the cache was built for.
func (c *MaskCache) Radius() float64 { return c.radius }

// Fingerprint is the fingerprint of the grid the cache was built from.
func (c *MaskCache) Fingerprint() terrain.Fingerprint { return c.fingerprint }

// BuildTime reports how long BuildMaskCache took.
func (c *MaskCache) BuildTime() time.Duration { return c.buildTime }

// Entries is the total number of neighbour entries across all masks.
func (c *MaskCache) Entries() int { return len(c.nodes) }

// Neighbors returns the cached mask of cell. The returned slice is shared
// with the cache and must not be modified.
func (c *MaskCache) Neighbors(cell terrain.Cell) ([]terrain.Node, bool) {
	if cell.Row < 0 || cell.Col < 0 || cell.Row > c.width || cell.Col > c.depth {
		return nil, false
	}
	index := cell.Row*(c.depth+1) + cell.Col
	lo, hi := c.offsets[index], c.offsets[index+1]
	return c.nodes[lo:hi:hi], true
}

// Matches reports ErrStaleMaskCache unless the cache was built from grid
// with the given radius.
func (c *MaskCache) Matches(grid *terrain.Grid, radius float64) error {
	if grid == nil || c.fingerprint != grid.Fingerprint() {
		return fmt.Errorf("%w: grid fingerprint changed", ErrStaleMaskCache)
	}
	if c.radius != radius {
		return fmt.Errorf("%w: cache radius %v, search radius %v", ErrStaleMaskCache, c.radius, radius)
	}
	return nil
}
