package planner

import (
	"context"
	"time"

	"terrainroute/internal/pathfinding"
	"terrainroute/internal/route"
	"terrainroute/internal/store"
	"terrainroute/internal/terrain"
)

// Request asks for a route between two cells. Nil fields keep the
// configured search settings.
type Request struct {
	Start          terrain.Cell
	Goal           terrain.Cell
	MaskRadius     *float64
	Timeout        *time.Duration
	DistInfluence  *float64
	SlopeInfluence *float64
	WaterInfluence *float64
	WaterLevel     *float64
	ClampToWater   *bool
}

// Result is a search outcome together with the settings that produced it.
type Result struct {
	ID          string                    `json:"id,omitempty"`
	Fingerprint string                    `json:"fingerprint"`
	Profile     pathfinding.SearchProfile `json:"profile"`
	Route       pathfinding.Route         `json:"route"`

	// Snapshot is the terrain the search ran against.
	Snapshot *Snapshot `json:"-"`
}

// Profile is the search profile of the current snapshot before request
// overrides.
func (p *Planner) Profile() pathfinding.SearchProfile {
	return p.profile(p.Snapshot())
}

func (p *Planner) profile(snap *Snapshot) pathfinding.SearchProfile {
	return pathfinding.SearchProfile{
		MaskRadius: snap.MaskRadius,
		Timeout:    p.search.Timeout.Duration(),
		Cost: pathfinding.CostModel{
			DistInfluence:  p.search.DistInfluence,
			SlopeInfluence: p.search.SlopeInfluence,
			WaterInfluence: p.search.WaterInfluence,
			WaterLevel:     p.search.WaterLevel,
		},
	}
}

func (p *Planner) profileFor(snap *Snapshot, req Request) pathfinding.SearchProfile {
	profile := p.profile(snap)
	override(&profile.MaskRadius, req.MaskRadius)
	override(&profile.Timeout, req.Timeout)
	override(&profile.Cost.DistInfluence, req.DistInfluence)
	override(&profile.Cost.SlopeInfluence, req.SlopeInfluence)
	override(&profile.Cost.WaterInfluence, req.WaterInfluence)
	override(&profile.Cost.WaterLevel, req.WaterLevel)
	return profile
}

func override[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// FindPath runs one search against the current snapshot. NotFound and
// TimedOut outcomes are returned as results, not errors. When a recorder
// is configured the outcome is stored and Result.ID is set; a failed write
// is logged and does not fail the request.
func (p *Planner) FindPath(ctx context.Context, req Request) (Result, error) {
	snap := p.Snapshot()
	profile := p.profileFor(snap, req)

	searchCtx := pathfinding.ContextWithProfiler(ctx, p.metrics.Profiler())
	found, err := snap.Navigator(profile.MaskRadius).FindRoute(searchCtx, req.Start, req.Goal, profile)
	if err != nil {
		return Result{}, err
	}

	clamp := p.search.ClampToWater
	override(&clamp, req.ClampToWater)
	if clamp && found.Status == pathfinding.StatusFound {
		found.Waypoints = route.ClampToWater(found.Waypoints, profile.Cost.WaterLevel)
	}

	result := Result{
		Fingerprint: snap.Grid.Fingerprint().String(),
		Profile:     profile,
		Route:       found,
		Snapshot:    snap,
	}
	p.logger.Debug("route searched",
		"start", req.Start.String(),
		"goal", req.Goal.String(),
		"status", found.Status.String(),
		"cost", found.Cost,
		"expanded", found.Expanded,
		"reopened", found.Reopened,
		"elapsed", found.Elapsed,
	)

	if p.recorder != nil {
		rec, err := p.recorder.SaveRoute(ctx, store.Record{
			Fingerprint: result.Fingerprint,
			Start:       req.Start,
			Goal:        req.Goal,
			MaskRadius:  profile.MaskRadius,
			Status:      found.Status,
			Cost:        found.Cost,
			Expanded:    found.Expanded,
			Reopened:    found.Reopened,
			Elapsed:     found.Elapsed,
			Waypoints:   found.Waypoints,
		})
		if err != nil {
			p.logger.Warn("route not recorded", "err", err)
		} else {
			result.ID = rec.ID
		}
	}
	return result, nil
}
