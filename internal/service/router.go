package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/broadcast"
	"github.com/verdealab/ceres/internal/port/genprovider"
)

// Router owns the reachable-provider set and the category→provider
// routing table. The table is mutated only by availability changes
// (refresh + repair) and the periodic optimization pass; Select is a pure
// lookup. All mutation is mutex-serialized.
type Router struct {
	mu           sync.RWMutex
	backends     map[routing.Provider]genprovider.Backend
	reachable    map[routing.Provider]bool
	table        map[routing.Category]routing.Provider
	lastOptimize time.Time

	recorder *Recorder
	hub      broadcast.Broadcaster
	cfg      config.Router
	now      func() time.Time // for testing
}

// NewRouter creates a Router over the given backends. The initial table
// maps every category to the head of its preference list; call
// RefreshAvailability and Repair before serving.
func NewRouter(backends map[routing.Provider]genprovider.Backend, recorder *Recorder, hub broadcast.Broadcaster, cfg config.Router) *Router {
	if hub == nil {
		hub = broadcast.Nop{}
	}

	table := make(map[routing.Category]routing.Provider, len(routing.Preferences))
	for cat, prefs := range routing.Preferences {
		table[cat] = prefs[0]
	}

	return &Router{
		backends:  backends,
		reachable: make(map[routing.Provider]bool),
		table:     table,
		recorder:  recorder,
		hub:       hub,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RefreshAvailability probes every backend for usable configuration and
// rebuilds the reachable set. It does not touch the routing table; call
// Repair afterwards.
func (r *Router) RefreshAvailability() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, b := range r.backends {
		r.reachable[name] = b.Reachable()
	}
}

// Repair substitutes, for every category whose mapped provider is
// unreachable, the first reachable alternate from its preference list.
// When no alternate is reachable the mapping is left pointing at an
// unreachable provider; invocation then fails through the normal error
// path instead of being pre-empted.
func (r *Router) Repair() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cat, current := range r.table {
		if r.reachable[current] {
			continue
		}
		for _, alt := range routing.Preferences[cat] {
			if r.reachable[alt] {
				slog.Info("routing table repaired",
					"category", cat, "old", current, "new", alt)
				r.table[cat] = alt
				break
			}
		}
	}
}

// Select returns the preferred provider for the category. Pure lookup.
func (r *Router) Select(cat routing.Category) routing.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[cat]
}

// Table returns a copy of the current routing table.
func (r *Router) Table() map[routing.Category]routing.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[routing.Category]routing.Provider, len(r.table))
	for k, v := range r.table {
		out[k] = v
	}
	return out
}

// Reachable reports whether the provider currently has usable
// configuration.
func (r *Router) Reachable(p routing.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reachable[p]
}

// Backend returns the backend registered for the provider.
func (r *Router) Backend(p routing.Provider) (genprovider.Backend, bool) {
	b, ok := r.backends[p]
	return b, ok
}

// Alternates returns the preference list for the category with the given
// providers excluded, preserving order.
func (r *Router) Alternates(cat routing.Category, exclude ...routing.Provider) []routing.Provider {
	skip := make(map[routing.Provider]bool, len(exclude))
	for _, p := range exclude {
		skip[p] = true
	}

	var out []routing.Provider
	for _, p := range routing.Preferences[cat] {
		if !skip[p] {
			out = append(out, p)
		}
	}
	return out
}

// Optimize re-ranks the routing table from accumulated metrics. It is a
// no-op until the recorder holds the configured minimum number of
// interactions, runs at most once per cooldown, and per category only
// considers reachable providers that reached the per-candidate usage
// floor, so a never-tried provider cannot win purely by having no
// negative data and a deconfigured one cannot win on stale history.
// Returns the number of categories whose mapping changed.
func (r *Router) Optimize(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.recorder.Total() < r.cfg.OptimizeMinInteractions {
		return 0
	}
	if !r.lastOptimize.IsZero() && now.Sub(r.lastOptimize) < r.cfg.OptimizeCooldown {
		return 0
	}
	r.lastOptimize = now

	changed := 0
	for cat, prefs := range routing.Preferences {
		current := r.table[cat]
		best := current
		bestScore := -1.0

		for _, candidate := range prefs {
			if !r.reachable[candidate] {
				continue
			}
			m, ok := r.recorder.Metrics(cat, candidate)
			if !ok || m.UsageCount < r.cfg.OptimizeMinUsage {
				continue
			}
			if score := m.Score(); score > bestScore {
				best = candidate
				bestScore = score
			}
		}

		if bestScore >= 0 && best != current {
			slog.Info("routing table optimized",
				"category", cat, "old", current, "new", best, "score", bestScore)
			r.table[cat] = best
			changed++
			r.hub.BroadcastEvent(ctx, broadcast.EventRoutingChange, map[string]any{
				"category": cat,
				"old":      current,
				"new":      best,
			})
		}
	}
	return changed
}

// StartOptimizer launches the periodic optimization goroutine. The
// interval only controls how often eligibility is checked; the cooldown
// still gates actual passes. A non-positive interval disables it.
func (r *Router) StartOptimizer(ctx context.Context) {
	if r.cfg.OptimizeInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(r.cfg.OptimizeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Optimize(ctx)
			}
		}
	}()
}
