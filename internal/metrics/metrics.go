package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/jpalmerr/pollster"
)

var _ pollster.Observer = (*Recorder)(nil)

type resourceStats struct {
	cycles      int
	errors      int
	drops       int
	lastLatency time.Duration
	lastError   string
}

// Recorder captures per-resource poll metrics in memory and, when built by
// [Setup] with telemetry enabled, mirrors them to OpenTelemetry instruments.
//
// Recorder implements [pollster.Observer]. A nil *Recorder is a valid no-op.
type Recorder struct {
	mu    sync.Mutex
	stats map[string]*resourceStats
	otel  *otelInstruments
}

// NewRecorder returns an in-memory Recorder with no exporters.
func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		stats: make(map[string]*resourceStats),
		otel:  otel,
	}
}

// ObserveCycle records one completed fetch for resource.
func (r *Recorder) ObserveCycle(resource string, latency time.Duration, err error) {
	if r == nil {
		return
	}

	r.mu.Lock()
	stats := r.ensureStatsLocked(resource)
	stats.cycles++
	stats.lastLatency = latency
	if err != nil {
		stats.errors++
		stats.lastError = err.Error()
	} else {
		stats.lastError = ""
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordCycle(resource, latency, err)
	}
}

// ObserveDrop records a result that a slow subscriber did not receive.
func (r *Recorder) ObserveDrop(resource string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.ensureStatsLocked(resource).drops++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordDrop(resource)
	}
}

// Snapshot is a copy of the stats recorded for one resource.
type Snapshot struct {
	Cycles      int
	Errors      int
	Drops       int
	LastLatency time.Duration
	LastError   string
}

// Snapshot returns the current stats for resource.
func (r *Recorder) Snapshot(resource string) Snapshot {
	if r == nil {
		return Snapshot{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.stats[resource]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		Cycles:      stats.cycles,
		Errors:      stats.errors,
		Drops:       stats.drops,
		LastLatency: stats.lastLatency,
		LastError:   stats.lastError,
	}
}

// Cycles returns the number of fetches recorded for resource.
func (r *Recorder) Cycles(resource string) int {
	return r.Snapshot(resource).Cycles
}

// Errors returns the number of failed fetches recorded for resource.
func (r *Recorder) Errors(resource string) int {
	return r.Snapshot(resource).Errors
}

// Drops returns the number of dropped deliveries recorded for resource.
func (r *Recorder) Drops(resource string) int {
	return r.Snapshot(resource).Drops
}

// Resources returns the names of all observed resources, sorted.
func (r *Recorder) Resources() []string {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	names := make([]string, 0, len(r.stats))
	for name := range r.stats {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

func (r *Recorder) ensureStatsLocked(resource string) *resourceStats {
	stats, ok := r.stats[resource]
	if !ok {
		stats = &resourceStats{}
		r.stats[resource] = stats
	}
	return stats
}
