package pathfinding

import (
	"context"
	"sync/atomic"
	"time"
)

// NavigatorProfiler captures instrumentation hooks for terrain searches.
type NavigatorProfiler interface {
	RecordMaskHit()
	RecordMaskMiss()
	RecordMaskBuild(duration time.Duration)
	RecordHeuristicEvaluation()
	RecordNodeExpanded()
	RecordNeighborGeneration(count int)
	RecordReopen()
	RecordOutcome(status Status, elapsed time.Duration)
}

// NavigatorMetrics accumulates profiling counters for Navigator operations.
// It is safe for concurrent use by many searches.
type NavigatorMetrics struct {
	maskHits             atomic.Int64
	maskMisses           atomic.Int64
	maskBuilds           atomic.Int64
	maskBuildTime        atomic.Int64
	heuristicEvaluations atomic.Int64
	nodesExpanded        atomic.Int64
	neighborGenerations  atomic.Int64
	neighborCount        atomic.Int64
	reopens              atomic.Int64
	found                atomic.Int64
	notFound             atomic.Int64
	timedOut             atomic.Int64
	searchTime           atomic.Int64
}

// MetricsSnapshot captures a point-in-time copy of navigator metrics.
type MetricsSnapshot struct {
	MaskHits             int64
	MaskMisses           int64
	MaskBuilds           int64
	MaskBuildTime        time.Duration
	HeuristicEvaluations int64
	NodesExpanded        int64
	NeighborGenerations  int64
	NeighborCount        int64
	Reopens              int64
	Found                int64
	NotFound             int64
	TimedOut             int64
	SearchTime           time.Duration
}

// Searches is the number of searches that ran to an outcome.
func (s MetricsSnapshot) Searches() int64 {
	return s.Found + s.NotFound + s.TimedOut
}

// Profiler returns a NavigatorProfiler implementation backed by this metric set.
func (m *NavigatorMetrics) Profiler() NavigatorProfiler {
	if m == nil {
		return nil
	}
	return (*metricsProfiler)(m)
}

// Reset zeroes all counters in the metrics set.
func (m *NavigatorMetrics) Reset() {
	if m == nil {
		return
	}
	for _, counter := range m.counters() {
		counter.Store(0)
	}
}

func (m *NavigatorMetrics) counters() []*atomic.Int64 {
	return []*atomic.Int64{
		&m.maskHits, &m.maskMisses, &m.maskBuilds, &m.maskBuildTime,
		&m.heuristicEvaluations, &m.nodesExpanded, &m.neighborGenerations,
		&m.neighborCount, &m.reopens, &m.found, &m.notFound, &m.timedOut,
		&m.searchTime,
	}
}

// Snapshot captures the current counter values.
func (m *NavigatorMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		MaskHits:             m.maskHits.Load(),
		MaskMisses:           m.maskMisses.Load(),
		MaskBuilds:           m.maskBuilds.Load(),
		MaskBuildTime:        time.Duration(m.maskBuildTime.Load()),
		HeuristicEvaluations: m.heuristicEvaluations.Load(),
		NodesExpanded:        m.nodesExpanded.Load(),
		NeighborGenerations:  m.neighborGenerations.Load(),
		NeighborCount:        m.neighborCount.Load(),
		Reopens:              m.reopens.Load(),
		Found:                m.found.Load(),
		NotFound:             m.notFound.Load(),
		TimedOut:             m.timedOut.Load(),
		SearchTime:           time.Duration(m.searchTime.Load()),
	}
}

// metricsProfiler implements NavigatorProfiler by mutating the backing metrics set.
type metricsProfiler NavigatorMetrics

func (m *metricsProfiler) RecordMaskHit() {
	(*NavigatorMetrics)(m).maskHits.Add(1)
}

func (m *metricsProfiler) RecordMaskMiss() {
	(*NavigatorMetrics)(m).maskMisses.Add(1)
}

func (m *metricsProfiler) RecordMaskBuild(duration time.Duration) {
	metrics := (*NavigatorMetrics)(m)
	metrics.maskBuilds.Add(1)
	metrics.maskBuildTime.Add(duration.Nanoseconds())
}

func (m *metricsProfiler) RecordHeuristicEvaluation() {
	(*NavigatorMetrics)(m).heuristicEvaluations.Add(1)
}

func (m *metricsProfiler) RecordNodeExpanded() {
	(*NavigatorMetrics)(m).nodesExpanded.Add(1)
}

func (m *metricsProfiler) RecordNeighborGeneration(count int) {
	metrics := (*NavigatorMetrics)(m)
	metrics.neighborGenerations.Add(1)
	metrics.neighborCount.Add(int64(count))
}

func (m *metricsProfiler) RecordReopen() {
	(*NavigatorMetrics)(m).reopens.Add(1)
}

func (m *metricsProfiler) RecordOutcome(status Status, elapsed time.Duration) {
	metrics := (*NavigatorMetrics)(m)
	switch status {
	case StatusFound:
		metrics.found.Add(1)
	case StatusTimedOut:
		metrics.timedOut.Add(1)
	default:
		metrics.notFound.Add(1)
	}
	metrics.searchTime.Add(elapsed.Nanoseconds())
}

type profilerContextKey struct{}

// ContextWithProfiler returns a context that will report the provided profiler during
// mask building and route searches.
func ContextWithProfiler(ctx context.Context, profiler NavigatorProfiler) context.Context {
	if profiler == nil {
		return ctx
	}
	return context.WithValue(ctx, profilerContextKey{}, profiler)
}

func profilerFromContext(ctx context.Context) NavigatorProfiler {
	if ctx == nil {
		return nil
	}
	if profiler, ok := ctx.Value(profilerContextKey{}).(NavigatorProfiler); ok {
		return profiler
	}
	return nil
}
