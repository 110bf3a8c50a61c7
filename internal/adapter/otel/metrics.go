package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ceres"

// Metrics holds the Ceres metric instruments.
type Metrics struct {
	Interactions   metric.Int64Counter
	Fallbacks      metric.Int64Counter
	InvokeDuration metric.Float64Histogram
	StepsExecuted  metric.Int64Counter
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Interactions, err = meter.Int64Counter("ceres.interactions",
		metric.WithDescription("Number of provider invocation chains"))
	if err != nil {
		return nil, err
	}

	m.Fallbacks, err = meter.Int64Counter("ceres.fallbacks",
		metric.WithDescription("Number of chains that ended on the fallback sentinel"))
	if err != nil {
		return nil, err
	}

	m.InvokeDuration, err = meter.Float64Histogram("ceres.invoke.duration_seconds",
		metric.WithDescription("Invocation chain duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.StepsExecuted, err = meter.Int64Counter("ceres.steps.executed",
		metric.WithDescription("Number of task steps started"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("ceres.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("ceres.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
