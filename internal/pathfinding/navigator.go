package pathfinding

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"terrainroute/internal/terrain"
)

// Status reports how a search ended.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	status, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// ParseStatus parses the textual form produced by Status.String.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(value) {
	case "found":
		return StatusFound, nil
	case "not_found":
		return StatusNotFound, nil
	case "timed_out":
		return StatusTimedOut, nil
	default:
		return 0, fmt.Errorf("pathfinding: unknown status %q", value)
	}
}

// SearchProfile carries the per-search parameters.
type SearchProfile struct {
	MaskRadius float64       `json:"maskRadius" yaml:"mask_radius"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	Cost       CostModel     `json:"cost" yaml:"cost"`
}

// DefaultProfile returns the search parameters used when none are configured.
func DefaultProfile() SearchProfile {
	return SearchProfile{
		MaskRadius: 3,
		Timeout:    250 * time.Millisecond,
		Cost: CostModel{
			DistInfluence:  1,
			SlopeInfluence: 2,
			WaterInfluence: 4,
			WaterLevel:     5,
		},
	}
}

func (p SearchProfile) Validate() error {
	if !(p.MaskRadius > 0) || math.IsInf(p.MaskRadius, 0) {
		return fmt.Errorf("%w: maskRadius must be positive, got %v", ErrInvalidConfiguration, p.MaskRadius)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfiguration, p.Timeout)
	}
	return p.Cost.Validate()
}

// Waypoint is one node of a returned route.
type Waypoint struct {
	Row    int     `json:"row" yaml:"row"`
	Col    int     `json:"col" yaml:"col"`
	Height float64 `json:"height" yaml:"height"`
}

// Cell drops the height.
func (w Waypoint) Cell() terrain.Cell {
	return terrain.Cell{Row: w.Row, Col: w.Col}
}

// Route is the result of FindRoute. Waypoints run from start to goal and
// are only set when Status is StatusFound.
type Route struct {
	Status    Status        `json:"status" yaml:"status"`
	Waypoints []Waypoint    `json:"waypoints" yaml:"waypoints"`
	Cost      float64       `json:"cost" yaml:"cost"`
	Expanded  int           `json:"expanded" yaml:"expanded"`
	Reopened  int           `json:"reopened" yaml:"reopened"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Navigator performs time-bounded A* over a terrain grid. It is safe for
// concurrent use; every FindRoute call owns its own search state.
type Navigator struct {
	grid  *terrain.Grid
	masks *MaskCache

	// heuristic overrides Distance3D; tests use it to force reopening.
	heuristic func(from, goal terrain.Node) float64
}

// NewNavigator returns a navigator over grid. masks may be nil, in which
// case neighbour masks are generated on demand.
func NewNavigator(grid *terrain.Grid, masks *MaskCache) (*Navigator, error) {
	if grid == nil {
		return nil, fmt.Errorf("%w: nil grid", ErrInvalidConfiguration)
	}
	if masks != nil && masks.Fingerprint() != grid.Fingerprint() {
		return nil, fmt.Errorf("%w: grid fingerprint changed", ErrStaleMaskCache)
	}
	return &Navigator{grid: grid, masks: masks}, nil
}

// FindRoute searches for a route from start to goal. NotFound and TimedOut
// are reported through Route.Status; the error is reserved for invalid input
// and for cancellation of ctx, in which case ctx.Err() is returned.
//
// The search may reopen closed nodes when a cheaper path to them appears.
// Signed slope costs can make edges negative, so termination on such
// weightings is bounded by profile.Timeout rather than by the graph.
func (n *Navigator) FindRoute(ctx context.Context, start, goal terrain.Cell, profile SearchProfile) (Route, error) {
	if err := profile.Validate(); err != nil {
		return Route{}, err
	}
	startNode, ok := n.grid.Node(start)
	if !ok {
		return Route{}, fmt.Errorf("%w: start %s outside grid", ErrInvalidCoordinate, start)
	}
	goalNode, ok := n.grid.Node(goal)
	if !ok {
		return Route{}, fmt.Errorf("%w: goal %s outside grid", ErrInvalidCoordinate, goal)
	}
	if n.masks != nil {
		if err := n.masks.Matches(n.grid, profile.MaskRadius); err != nil {
			return Route{}, err
		}
	}

	s := &search{
		nav:      n,
		ctx:      ctx,
		profiler: profilerFromContext(ctx),
		profile:  profile,
		goal:     goalNode,
		started:  time.Now(),
		slots:    make(map[terrain.Cell]*slot),
	}
	s.deadline = s.started.Add(profile.Timeout)

	route, err := s.run(startNode)
	route.Elapsed = time.Since(s.started)
	if s.profiler != nil && err == nil {
		s.profiler.RecordOutcome(route.Status, route.Elapsed)
	}
	return route, err
}

// search holds the state of one FindRoute call.
type search struct {
	nav      *Navigator
	ctx      context.Context
	profiler NavigatorProfiler
	profile  SearchProfile
	goal     terrain.Node
	started  time.Time
	deadline time.Time

	arena    []searchNode
	open     openQueue
	slots    map[terrain.Cell]*slot
	maskBuf  []terrain.Node
	expanded int
	reopened int
}

func (s *search) run(start terrain.Node) (Route, error) {
	s.push(searchNode{node: start, given: 0, heuristic: s.estimate(start), parent: -1})

	for s.open.Len() > 0 {
		if route, stop, err := s.interrupted(); stop {
			return route, err
		}

		item := heap.Pop(&s.open).(*openItem)
		currentIdx := item.node
		current := s.arena[currentIdx]
		s.slots[current.node.Cell].item = nil
		s.expanded++
		if s.profiler != nil {
			s.profiler.RecordNodeExpanded()
		}

		if current.node.Cell == s.goal.Cell {
			return Route{
				Status:    StatusFound,
				Waypoints: s.reconstruct(currentIdx),
				Cost:      current.given,
				Expanded:  s.expanded,
				Reopened:  s.reopened,
			}, nil
		}

		neighbors := s.neighbors(current.node.Cell)
		if s.profiler != nil {
			s.profiler.RecordNeighborGeneration(len(neighbors))
		}
		for _, next := range neighbors {
			if route, stop, err := s.interrupted(); stop {
				return route, err
			}
			candidate := searchNode{
				node:      next,
				given:     current.given + s.profile.Cost.Cost(current.node, next),
				heuristic: s.estimate(next),
				parent:    currentIdx,
			}
			s.relax(candidate)
		}
	}

	return Route{Status: StatusNotFound, Expanded: s.expanded, Reopened: s.reopened}, nil
}

// relax inserts candidate, replaces a worse open entry for the same cell or
// reopens a worse closed one.
func (s *search) relax(candidate searchNode) {
	existing, ok := s.slots[candidate.node.Cell]
	if !ok {
		s.push(candidate)
		return
	}
	total := candidate.total()
	if s.arena[existing.node].total() <= total {
		return
	}
	idx := s.appendNode(candidate)
	existing.node = idx
	if existing.closed() {
		existing.item = &openItem{node: idx, total: total}
		heap.Push(&s.open, existing.item)
		s.reopened++
		if s.profiler != nil {
			s.profiler.RecordReopen()
		}
		return
	}
	s.open.replace(existing.item, idx, total)
}

func (s *search) push(n searchNode) {
	idx := s.appendNode(n)
	item := &openItem{node: idx, total: n.total()}
	heap.Push(&s.open, item)
	s.slots[n.node.Cell] = &slot{node: idx, item: item}
}

func (s *search) appendNode(n searchNode) int32 {
	s.arena = append(s.arena, n)
	return int32(len(s.arena) - 1)
}

func (s *search) estimate(from terrain.Node) float64 {
	if s.profiler != nil {
		s.profiler.RecordHeuristicEvaluation()
	}
	if s.nav.heuristic != nil {
		return s.nav.heuristic(from, s.goal)
	}
	return Distance3D(from, s.goal)
}

func (s *search) neighbors(cell terrain.Cell) []terrain.Node {
	if s.nav.masks != nil {
		if mask, ok := s.nav.masks.Neighbors(cell); ok {
			if s.profiler != nil {
				s.profiler.RecordMaskHit()
			}
			return mask
		}
	}
	if s.profiler != nil {
		s.profiler.RecordMaskMiss()
	}
	s.maskBuf = appendMask(s.maskBuf[:0], s.nav.grid, cell, s.profile.MaskRadius)
	return s.maskBuf
}

// interrupted reports whether the caller cancelled ctx or the search ran
// past its deadline. A timed out search never returns a partial route.
func (s *search) interrupted() (Route, bool, error) {
	if err := s.ctx.Err(); err != nil {
		return Route{}, true, err
	}
	if time.Now().After(s.deadline) {
		return Route{Status: StatusTimedOut, Expanded: s.expanded, Reopened: s.reopened}, true, nil
	}
	return Route{}, false, nil
}

// reconstruct walks parent indices from the goal entry back to the start
// and returns the waypoints in start-to-goal order.
func (s *search) reconstruct(idx int32) []Waypoint {
	var waypoints []Waypoint
	for idx >= 0 {
		n := s.arena[idx]
		waypoints = append(waypoints, Waypoint{Row: n.node.Row, Col: n.node.Col, Height: n.node.Height})
		idx = n.parent
	}
	for i, j := 0, len(waypoints)-1; i < j; i, j = i+1, j-1 {
		waypoints[i], waypoints[j] = waypoints[j], waypoints[i]
	}
	return waypoints
}
