package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ceres"

// StartInvokeSpan starts a span for one fallback-executor invocation
// chain.
func StartInvokeSpan(ctx context.Context, category, primary string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "invoke",
		trace.WithAttributes(
			attribute.String("invoke.category", category),
			attribute.String("invoke.primary", primary),
		),
	)
}

// StartProviderCallSpan starts a span for one backend call within an
// invocation chain.
func StartProviderCallSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provider_call",
		trace.WithAttributes(
			attribute.String("provider.name", provider),
		),
	)
}

// StartStepSpan starts a span for one task engine step.
func StartStepSpan(ctx context.Context, taskID, stepID, role string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("step.id", stepID),
			attribute.String("step.role", role),
		),
	)
}
