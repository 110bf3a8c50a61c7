package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	cotel "github.com/verdealab/ceres/internal/adapter/otel"
	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/cache"
	"github.com/verdealab/ceres/internal/port/genprovider"
)

// sentinelText is returned when every provider attempt failed.
const sentinelText = "No provider was able to answer this request right now. Please try again shortly."

// Executor performs provider invocations with the two-tier fallback
// policy: retry the failure against a ranked alternate list, and never
// surface raw errors to the caller. Every invocation chain produces one
// Interaction and one metrics update.
type Executor struct {
	router   *Router
	recorder *Recorder
	cache    cache.Cache
	cacheTTL time.Duration
	group    singleflight.Group
	cfg      config.Executor
	metrics  *cotel.Metrics
}

// NewExecutor creates an Executor. The cache is optional; pass nil to
// disable memoization.
func NewExecutor(router *Router, recorder *Recorder, responseCache cache.Cache, cacheTTL time.Duration, cfg config.Executor) *Executor {
	return &Executor{
		router:   router,
		recorder: recorder,
		cache:    responseCache,
		cacheTTL: cacheTTL,
		cfg:      cfg,
	}
}

// SetMetrics attaches the telemetry instruments. Optional; without it
// invocations are not counted.
func (e *Executor) SetMetrics(m *cotel.Metrics) {
	e.metrics = m
}

// Invoke submits text to the preferred provider for the category, walking
// the alternate list on failure or low confidence. It always returns a
// populated result: total failure degrades to the fallback sentinel with
// minimal confidence instead of an error.
func (e *Executor) Invoke(ctx context.Context, text string, cat routing.Category, opts routing.InvokeOptions) routing.InvokeResult {
	start := time.Now()

	primary := e.router.Select(cat)
	if opts.ForceProvider.Valid() && e.router.Reachable(opts.ForceProvider) {
		primary = opts.ForceProvider
	}

	ctx, span := cotel.StartInvokeSpan(ctx, string(cat), string(primary))
	defer span.End()

	tried := []routing.Provider{primary}

	out, err := e.call(ctx, primary, text, cat, opts.Timeout)
	if err == nil {
		short := cat != routing.CategoryVoice && len(out) < e.cfg.LowConfidenceChars
		if !short || opts.ConfidenceThreshold <= 0 {
			return e.finalize(ctx, start, text, cat, primary, primary, out, e.cfg.PrimaryConfidence, true)
		}
		// Successful but suspiciously short: record a lowered confidence
		// and try to upgrade through an alternate.
		slog.Debug("low-confidence response, attempting upgrade",
			"provider", primary, "category", cat, "chars", len(out))
		if alt, altOut, ok := e.tryAlternates(ctx, text, cat, opts.Timeout, tried); ok && len(altOut) > len(out) {
			return e.finalize(ctx, start, text, cat, primary, alt, altOut, e.cfg.UpgradeConfidence, true)
		}
		return e.finalize(ctx, start, text, cat, primary, primary, out, e.cfg.LowConfidence, true)
	}

	slog.Warn("primary provider failed",
		"provider", primary, "category", cat, "error", err)

	if alt, altOut, ok := e.tryAlternates(ctx, text, cat, opts.Timeout, tried); ok {
		return e.finalize(ctx, start, text, cat, primary, alt, altOut, e.cfg.FailureConfidence, true)
	}

	// Every attempt failed: synthetic response attributed to the
	// fallback sentinel. Callers always get a usable string.
	return e.finalize(ctx, start, text, cat, primary, routing.ProviderFallback, sentinelText, e.cfg.SentinelConfidence, false)
}

// tryAlternates walks the static preference list for the category,
// skipping already-tried and unreachable providers, and returns the first
// successful result.
func (e *Executor) tryAlternates(ctx context.Context, text string, cat routing.Category, timeout time.Duration, tried []routing.Provider) (routing.Provider, string, bool) {
	for _, alt := range e.router.Alternates(cat, tried...) {
		if !e.router.Reachable(alt) {
			continue
		}
		out, err := e.call(ctx, alt, text, cat, timeout)
		if err != nil {
			slog.Warn("alternate provider failed",
				"provider", alt, "category", cat, "error", err)
			continue
		}
		return alt, out, true
	}
	return routing.ProviderFallback, "", false
}

// call invokes one backend through the response cache with a hard
// per-call timeout. Identical concurrent misses are deduplicated.
func (e *Executor) call(ctx context.Context, prov routing.Provider, text string, cat routing.Category, timeout time.Duration) (string, error) {
	backend, ok := e.router.Backend(prov)
	if !ok {
		return "", fmt.Errorf("no backend for provider %q: %w", prov, genprovider.ErrUnavailable)
	}

	ctx, span := cotel.StartProviderCallSpan(ctx, string(prov))
	defer span.End()

	key := cacheKey(prov, cat, text)
	if e.cache != nil {
		if entry, ok := e.cache.Get(key); ok && e.fresh(entry) {
			return entry.Text, nil
		}
	}

	if timeout <= 0 {
		timeout = e.cfg.CallTimeout
	}

	out, err, _ := e.group.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, genErr := backend.Generate(callCtx, genprovider.GenerateRequest{
			Prompt:   text,
			Category: cat,
		})
		if genErr != nil {
			return "", genErr
		}

		if e.cache != nil {
			e.cache.Set(key, cache.Entry{
				Text:       result,
				Confidence: e.cfg.PrimaryConfidence,
				CachedAt:   time.Now(),
			})
		}
		return result, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// fresh applies the caller-side TTL check to a cached entry.
func (e *Executor) fresh(entry cache.Entry) bool {
	if e.cacheTTL <= 0 {
		return true
	}
	return time.Since(entry.CachedAt) <= e.cacheTTL
}

// finalize builds the result, appends the Interaction for the whole
// chain and updates the (category, actual) metrics.
func (e *Executor) finalize(ctx context.Context, start time.Time, input string, cat routing.Category, primary, actual routing.Provider, text string, confidence float64, success bool) routing.InvokeResult {
	latency := time.Since(start).Milliseconds()

	e.recorder.Record(ctx, routing.Interaction{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Input:      input,
		Output:     text,
		Category:   cat,
		Primary:    primary,
		Actual:     actual,
		LatencyMS:  latency,
		Confidence: confidence,
		Success:    success,
	})

	if e.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("category", string(cat)),
			attribute.String("provider", string(actual)),
			attribute.Bool("success", success),
		)
		e.metrics.Interactions.Add(ctx, 1, attrs)
		e.metrics.InvokeDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if actual == routing.ProviderFallback {
			e.metrics.Fallbacks.Add(ctx, 1, metric.WithAttributes(
				attribute.String("category", string(cat)),
			))
		}
	}

	return routing.InvokeResult{
		Text:       text,
		Provider:   actual,
		Category:   cat,
		Confidence: confidence,
		LatencyMS:  latency,
	}
}

func cacheKey(prov routing.Provider, cat routing.Category, text string) string {
	sum := sha256.Sum256([]byte(string(prov) + "|" + string(cat) + "|" + text))
	return hex.EncodeToString(sum[:])
}
