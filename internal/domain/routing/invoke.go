package routing

import "time"

// InvokeOptions are caller-supplied knobs for one invocation. The zero
// value means "route normally, default timeout, no confidence policy".
type InvokeOptions struct {
	// ForceProvider bypasses the routing table when set and reachable.
	ForceProvider Provider `json:"force_provider,omitempty"`

	// ConfidenceThreshold enables the low-confidence upgrade attempt when
	// > 0: a successful but short response is retried against alternates.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`

	// Timeout bounds each individual provider call. Zero means the
	// executor's configured default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// InvokeResult is what every invocation returns. Callers always receive a
// populated result, never an error: total failure degrades to the fallback
// sentinel provider with minimal confidence.
type InvokeResult struct {
	Text       string   `json:"text"`
	Provider   Provider `json:"provider"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	LatencyMS  int64    `json:"latency_ms"`
}

// Failed reports whether the result is the synthetic total-failure
// response attributed to the fallback sentinel.
func (r InvokeResult) Failed() bool {
	return r.Provider == ProviderFallback
}
