package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/database"
)

const (
	interactionsKey = "interactions"
	metricsKey      = "metrics"
)

type metricsIndex struct {
	Category routing.Category
	Provider routing.Provider
}

// Recorder owns the bounded interaction history and the per
// (category, provider) performance aggregates. All mutation goes through
// Record under one mutex, so concurrent task sequences observe atomic
// updates.
type Recorder struct {
	mu      sync.Mutex
	history []routing.Interaction
	limit   int
	metrics map[metricsIndex]*routing.PerformanceMetrics
	store   database.Store
}

// NewRecorder creates a Recorder with the given history limit. The store
// receives best-effort snapshots; pass nil to keep everything in memory.
func NewRecorder(limit int, store database.Store) *Recorder {
	return &Recorder{
		limit:   limit,
		metrics: make(map[metricsIndex]*routing.PerformanceMetrics),
		store:   store,
	}
}

// Restore loads previously persisted history and aggregates. Called once
// at startup, before any recording.
func (r *Recorder) Restore(ctx context.Context) {
	if r.store == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.Load(ctx, interactionsKey, &r.history); err != nil {
		slog.Warn("recorder: restore interactions failed", "error", err)
	}

	var persisted []routing.PerformanceMetrics
	if _, err := r.store.Load(ctx, metricsKey, &persisted); err != nil {
		slog.Warn("recorder: restore metrics failed", "error", err)
		return
	}
	for i := range persisted {
		m := persisted[i]
		r.metrics[metricsIndex{m.Category, m.Provider}] = &m
	}
}

// Record appends one interaction and folds it into the aggregates for its
// (category, actual provider) pair. The oldest history entry is evicted
// once the limit is exceeded.
func (r *Recorder) Record(ctx context.Context, in routing.Interaction) {
	r.mu.Lock()

	r.history = append(r.history, in)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}

	key := metricsIndex{in.Category, in.Actual}
	m, ok := r.metrics[key]
	if !ok {
		m = &routing.PerformanceMetrics{Category: in.Category, Provider: in.Actual}
		r.metrics[key] = m
	}
	m.Record(in)

	history := append([]routing.Interaction(nil), r.history...)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	// Persistence is best-effort; a failed write never blocks recording.
	if err := r.store.Save(ctx, interactionsKey, history); err != nil {
		slog.Warn("recorder: persist interactions failed", "error", err)
	}
	if err := r.store.Save(ctx, metricsKey, snapshot); err != nil {
		slog.Warn("recorder: persist metrics failed", "error", err)
	}
}

// Total returns the number of interactions currently retained.
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// Metrics returns a copy of the aggregates for one (category, provider)
// pair.
func (r *Recorder) Metrics(cat routing.Category, prov routing.Provider) (routing.PerformanceMetrics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.metrics[metricsIndex{cat, prov}]
	if !ok {
		return routing.PerformanceMetrics{}, false
	}
	return *m, true
}

// Snapshot returns copies of every aggregate, ordered by category then
// provider.
func (r *Recorder) Snapshot() []routing.PerformanceMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Recorder) snapshotLocked() []routing.PerformanceMetrics {
	out := make([]routing.PerformanceMetrics, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}

// History returns a copy of the retained interactions, oldest first.
func (r *Recorder) History() []routing.Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routing.Interaction(nil), r.history...)
}
