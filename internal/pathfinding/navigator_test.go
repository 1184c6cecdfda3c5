package pathfinding

import (
	"container/heap"
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrainroute/internal/terrain"
)

func testProfile(radius float64) SearchProfile {
	return SearchProfile{
		MaskRadius: radius,
		Timeout:    5 * time.Second,
		Cost:       CostModel{DistInfluence: 1, SlopeInfluence: 1, WaterInfluence: 1, WaterLevel: -1},
	}
}

func newTestNavigator(t *testing.T, grid *terrain.Grid, masks *MaskCache) *Navigator {
	t.Helper()
	nav, err := NewNavigator(grid, masks)
	require.NoError(t, err)
	return nav
}

func routeCells(route Route) []terrain.Cell {
	out := make([]terrain.Cell, len(route.Waypoints))
	for i, w := range route.Waypoints {
		out[i] = w.Cell()
	}
	return out
}

func TestFindRouteStartEqualsGoal(t *testing.T) {
	nav := newTestNavigator(t, flatGrid(t, 3, 3), nil)
	cell := terrain.Cell{Row: 1, Col: 2}

	route, err := nav.FindRoute(context.Background(), cell, cell, testProfile(1.5))
	require.NoError(t, err)
	assert.Equal(t, StatusFound, route.Status)
	assert.Equal(t, []Waypoint{{Row: 1, Col: 2}}, route.Waypoints)
	assert.Zero(t, route.Cost)
}

func TestFindRouteStaircase(t *testing.T) {
	// 4x4 nodes, flat and dry. Below radius sqrt(2) only axis steps exist.
	nav := newTestNavigator(t, flatGrid(t, 3, 3), nil)
	start := terrain.Cell{Row: 0, Col: 0}
	goal := terrain.Cell{Row: 3, Col: 3}

	route, err := nav.FindRoute(context.Background(), start, goal, testProfile(1.2))
	require.NoError(t, err)
	require.Equal(t, StatusFound, route.Status)
	require.Len(t, route.Waypoints, 7)
	assert.InDelta(t, 6.0, route.Cost, 1e-9)
	assert.Equal(t, start, route.Waypoints[0].Cell())
	assert.Equal(t, goal, route.Waypoints[6].Cell())

	for i := 1; i < len(route.Waypoints); i++ {
		prev, curr := route.Waypoints[i-1], route.Waypoints[i]
		dr, dc := curr.Row-prev.Row, curr.Col-prev.Col
		assert.True(t, (dr == 1 && dc == 0) || (dr == 0 && dc == 1), "step %d is not monotonic: %+v -> %+v", i, prev, curr)
	}
}

func TestFindRouteTakesDiagonalsWhenMaskAllows(t *testing.T) {
	nav := newTestNavigator(t, flatGrid(t, 3, 3), nil)

	route, err := nav.FindRoute(context.Background(), terrain.Cell{}, terrain.Cell{Row: 3, Col: 3}, testProfile(1.5))
	require.NoError(t, err)
	require.Equal(t, StatusFound, route.Status)
	assert.Equal(t, []terrain.Cell{{Row: 0, Col: 0}, {Row: 1, Col: 1}, {Row: 2, Col: 2}, {Row: 3, Col: 3}}, routeCells(route))
	assert.InDelta(t, 3*math.Sqrt2, route.Cost, 1e-9)
}

// dijkstraCost is a reference single-source search over the same mask
// graph and cost model.
func dijkstraCost(grid *terrain.Grid, start, goal terrain.Cell, profile SearchProfile) float64 {
	dist := make([]float64, grid.Len())
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[grid.Index(start)] = 0
	pq := &dijkstraQueue{{cell: start}}
	for pq.Len() > 0 {
		item := heap.Pop(pq).(dijkstraItem)
		if item.dist > dist[grid.Index(item.cell)] {
			continue
		}
		if item.cell == goal {
			return item.dist
		}
		from, _ := grid.Node(item.cell)
		for _, next := range GenerateMask(grid, item.cell, profile.MaskRadius) {
			d := item.dist + profile.Cost.Cost(from, next)
			if d < dist[grid.Index(next.Cell)] {
				dist[grid.Index(next.Cell)] = d
				heap.Push(pq, dijkstraItem{cell: next.Cell, dist: d})
			}
		}
	}
	return math.Inf(1)
}

type dijkstraItem struct {
	cell terrain.Cell
	dist float64
}

type dijkstraQueue []dijkstraItem

func (q dijkstraQueue) Len() int           { return len(q) }
func (q dijkstraQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q dijkstraQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *dijkstraQueue) Push(x any)        { *q = append(*q, x.(dijkstraItem)) }
func (q *dijkstraQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

func TestFindRouteFlatFieldMatchesDijkstra(t *testing.T) {
	grid := flatGrid(t, 14, 11)
	nav := newTestNavigator(t, grid, nil)
	pairs := [][2]terrain.Cell{
		{{Row: 0, Col: 0}, {Row: 14, Col: 11}},
		{{Row: 7, Col: 2}, {Row: 1, Col: 10}},
		{{Row: 13, Col: 0}, {Row: 0, Col: 5}},
		{{Row: 5, Col: 5}, {Row: 6, Col: 9}},
	}
	for _, radius := range []float64{1.2, 1.5, 2.5, 3} {
		profile := testProfile(radius)
		for _, pair := range pairs {
			route, err := nav.FindRoute(context.Background(), pair[0], pair[1], profile)
			require.NoError(t, err)
			require.Equal(t, StatusFound, route.Status)
			assert.InDelta(t, dijkstraCost(grid, pair[0], pair[1], profile), route.Cost, 1e-9,
				"radius %v from %s to %s", radius, pair[0], pair[1])
		}
	}
}

// reopeningGrid is a 3x5 node grid whose walls leave two corridors from
// (0,0) to (0,4): a short one along row 0 and a long one around the bottom.
func reopeningGrid(t *testing.T) *terrain.Grid {
	t.Helper()
	const width, depth = 2, 4
	heights := make([]float64, (width+1)*(depth+1))
	for _, wall := range []terrain.Cell{{Row: 1, Col: 1}, {Row: 1, Col: 2}, {Row: 1, Col: 4}, {Row: 2, Col: 4}} {
		heights[wall.Row*(depth+1)+wall.Col] = 1000
	}
	grid, err := terrain.NewGridFromHeights(width, depth, heights)
	require.NoError(t, err)
	return grid
}

func TestFindRouteReopensClosedNodes(t *testing.T) {
	grid := reopeningGrid(t)
	nav := newTestNavigator(t, grid, nil)
	// An inconsistent estimate pushes the short corridor to the back of the
	// queue, so (0,2) and (0,3) close via the long corridor first.
	nav.heuristic = func(from, goal terrain.Node) float64 {
		switch from.Cell {
		case terrain.Cell{Row: 0, Col: 1}:
			return 100
		case goal.Cell:
			return 500
		default:
			return 0
		}
	}
	profile := SearchProfile{MaskRadius: 1.1, Timeout: 5 * time.Second, Cost: CostModel{DistInfluence: 1}}

	var metrics NavigatorMetrics
	ctx := ContextWithProfiler(context.Background(), metrics.Profiler())
	route, err := nav.FindRoute(ctx, terrain.Cell{}, terrain.Cell{Row: 0, Col: 4}, profile)
	require.NoError(t, err)
	require.Equal(t, StatusFound, route.Status)
	assert.Equal(t, []terrain.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}, {Row: 0, Col: 4}}, routeCells(route))
	assert.InDelta(t, 4.0, route.Cost, 1e-9)
	assert.Equal(t, 3, route.Reopened)
	assert.EqualValues(t, 3, metrics.Snapshot().Reopens)
}

// ringGrid is flat except for a ring of tall cells at Chebyshev distance 3
// around center, which no mask can cross.
func ringGrid(t *testing.T, size int, center terrain.Cell) *terrain.Grid {
	t.Helper()
	heights := make([]float64, (size+1)*(size+1))
	for row := center.Row - 3; row <= center.Row+3; row++ {
		for col := center.Col - 3; col <= center.Col+3; col++ {
			if max(abs(row-center.Row), abs(col-center.Col)) == 3 {
				heights[row*(size+1)+col] = 1000
			}
		}
	}
	grid, err := terrain.NewGridFromHeights(size, size, heights)
	require.NoError(t, err)
	return grid
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestFindRouteNotFoundWhenGoalEnclosed(t *testing.T) {
	goal := terrain.Cell{Row: 5, Col: 5}
	nav := newTestNavigator(t, ringGrid(t, 10, goal), nil)

	route, err := nav.FindRoute(context.Background(), terrain.Cell{}, goal, testProfile(1.5))
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, route.Status)
	assert.Empty(t, route.Waypoints)
	assert.Equal(t, 121-49, route.Expanded-route.Reopened)
}

func TestFindRouteTimesOut(t *testing.T) {
	goal := terrain.Cell{Row: 250, Col: 250}
	nav := newTestNavigator(t, ringGrid(t, 500, goal), nil)
	profile := testProfile(1.5)
	profile.Timeout = time.Millisecond

	began := time.Now()
	route, err := nav.FindRoute(context.Background(), terrain.Cell{}, goal, profile)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, route.Status)
	assert.Empty(t, route.Waypoints)
	assert.Less(t, time.Since(began), 500*time.Millisecond)
}

func TestFindRouteIsDeterministic(t *testing.T) {
	grid := noiseGrid(t, 40, 40)
	cache, err := BuildMaskCache(context.Background(), grid, 3, 4)
	require.NoError(t, err)
	// Slope influence no larger than distance influence keeps every edge
	// non-negative on a grid with unit planar steps.
	profile := DefaultProfile()
	profile.Timeout = 5 * time.Second
	profile.Cost.SlopeInfluence = 1
	start, goal := terrain.Cell{Row: 2, Col: 3}, terrain.Cell{Row: 37, Col: 31}

	cached := newTestNavigator(t, grid, cache)
	onDemand := newTestNavigator(t, grid, nil)

	first, err := cached.FindRoute(context.Background(), start, goal, profile)
	require.NoError(t, err)
	second, err := cached.FindRoute(context.Background(), start, goal, profile)
	require.NoError(t, err)
	third, err := onDemand.FindRoute(context.Background(), start, goal, profile)
	require.NoError(t, err)

	require.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Waypoints, second.Waypoints)
	assert.Equal(t, first.Waypoints, third.Waypoints)
	assert.Equal(t, first.Cost, third.Cost)
	assert.Equal(t, first.Expanded, third.Expanded)
}

func TestFindRouteRejectsInvalidInput(t *testing.T) {
	nav := newTestNavigator(t, flatGrid(t, 4, 4), nil)
	ctx := context.Background()
	inside := terrain.Cell{Row: 1, Col: 1}

	_, err := nav.FindRoute(ctx, terrain.Cell{Row: -1}, inside, testProfile(1.5))
	require.ErrorIs(t, err, ErrInvalidCoordinate)
	_, err = nav.FindRoute(ctx, inside, terrain.Cell{Row: 4, Col: 5}, testProfile(1.5))
	require.ErrorIs(t, err, ErrInvalidCoordinate)

	cases := map[string]func(*SearchProfile){
		"zero radius":    func(p *SearchProfile) { p.MaskRadius = 0 },
		"nan radius":     func(p *SearchProfile) { p.MaskRadius = math.NaN() },
		"zero timeout":   func(p *SearchProfile) { p.Timeout = 0 },
		"negative slope": func(p *SearchProfile) { p.Cost.SlopeInfluence = -1 },
		"nan water":      func(p *SearchProfile) { p.Cost.WaterInfluence = math.NaN() },
		"inf level":      func(p *SearchProfile) { p.Cost.WaterLevel = math.Inf(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			profile := testProfile(1.5)
			mutate(&profile)
			_, err := nav.FindRoute(ctx, inside, inside, profile)
			require.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestFindRouteRejectsStaleMaskCache(t *testing.T) {
	grid := flatGrid(t, 4, 4)
	cache, err := BuildMaskCache(context.Background(), grid, 2, 1)
	require.NoError(t, err)

	nav := newTestNavigator(t, grid, cache)
	_, err = nav.FindRoute(context.Background(), terrain.Cell{}, terrain.Cell{Row: 4, Col: 4}, testProfile(1.5))
	require.ErrorIs(t, err, ErrStaleMaskCache)

	_, err = NewNavigator(noiseGrid(t, 4, 4), cache)
	require.ErrorIs(t, err, ErrStaleMaskCache)
}

func TestFindRouteReturnsContextError(t *testing.T) {
	nav := newTestNavigator(t, flatGrid(t, 4, 4), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := nav.FindRoute(ctx, terrain.Cell{}, terrain.Cell{Row: 4, Col: 4}, testProfile(1.5))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFindRouteAvoidsWaterAndSlope(t *testing.T) {
	// A 3x3 node grid with a shallow flooded centre.
	heights := []float64{
		0, 0, 0,
		0, -0.5, 0,
		0, 0, 0,
	}
	grid, err := terrain.NewGridFromHeights(2, 2, heights)
	require.NoError(t, err)
	nav := newTestNavigator(t, grid, nil)
	profile := SearchProfile{
		MaskRadius: 1.5,
		Timeout:    time.Second,
		Cost:       CostModel{DistInfluence: 1, WaterInfluence: 10, WaterLevel: 0},
	}
	require.Contains(t, cells(GenerateMask(grid, terrain.Cell{Row: 1, Col: 0}, 1.5)), terrain.Cell{Row: 1, Col: 1})

	route, err := nav.FindRoute(context.Background(), terrain.Cell{Row: 1, Col: 0}, terrain.Cell{Row: 1, Col: 2}, profile)
	require.NoError(t, err)
	require.Equal(t, StatusFound, route.Status)
	for _, w := range route.Waypoints {
		assert.NotEqual(t, terrain.Cell{Row: 1, Col: 1}, w.Cell())
	}
}

func TestStatusText(t *testing.T) {
	for _, status := range []Status{StatusFound, StatusNotFound, StatusTimedOut} {
		text, err := status.MarshalText()
		require.NoError(t, err)
		var parsed Status
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, status, parsed)
	}
	_, err := ParseStatus("lost")
	require.Error(t, err)
}
