package routing

import "time"

// Interaction is the immutable record of one provider invocation chain.
// Primary is the provider the routing table initially chose; Actual is the
// provider that produced the returned text, which may differ after
// fallback. One Interaction is appended per invocation chain, not per
// individual retry.
type Interaction struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Category   Category  `json:"category"`
	Primary    Provider  `json:"primary"`
	Actual     Provider  `json:"actual"`
	LatencyMS  int64     `json:"latency_ms"`
	Confidence float64   `json:"confidence"`
	Success    bool      `json:"success"`
}

// PerformanceMetrics aggregates interactions for one (category, provider)
// pair. The running averages are maintained incrementally, so no raw
// history is needed to reconstruct them.
type PerformanceMetrics struct {
	Category      Category  `json:"category"`
	Provider      Provider  `json:"provider"`
	UsageCount    int       `json:"usage_count"`
	AvgLatencyMS  float64   `json:"avg_latency_ms"`
	AvgConfidence float64   `json:"avg_confidence"`
	SuccessRate   float64   `json:"success_rate"`
	LastUsed      time.Time `json:"last_used"`
}

// Record folds one interaction into the running aggregates using
// newAvg = (oldAvg*(n-1) + newValue) / n.
func (m *PerformanceMetrics) Record(in Interaction) {
	m.UsageCount++
	n := float64(m.UsageCount)

	m.AvgLatencyMS = (m.AvgLatencyMS*(n-1) + float64(in.LatencyMS)) / n
	m.AvgConfidence = (m.AvgConfidence*(n-1) + in.Confidence) / n

	success := 0.0
	if in.Success {
		success = 1.0
	}
	m.SuccessRate = (m.SuccessRate*(n-1) + success) / n
	m.LastUsed = in.Timestamp
}

// Score computes the composite routing score used by the optimization
// pass: weighted success rate, average confidence, and latency normalized
// against a 10s ceiling.
func (m *PerformanceMetrics) Score() float64 {
	latency := m.AvgLatencyMS / 10_000
	if latency > 1 {
		latency = 1
	}
	return 0.5*m.SuccessRate + 0.3*m.AvgConfidence + 0.2*(1-latency)
}
