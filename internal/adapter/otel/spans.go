package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentlens"

// StartAppendSpan starts a span for a history append.
func StartAppendSpan(ctx context.Context, tool, category string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "history.append",
		trace.WithAttributes(
			attribute.String("call.tool", tool),
			attribute.String("call.category", category),
		),
	)
}

// StartQuerySpan starts a span for a history query.
func StartQuerySpan(ctx context.Context, toolFilter string, offset, maxResults int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "history.query",
		trace.WithAttributes(
			attribute.String("query.tool", toolFilter),
			attribute.Int("query.offset", offset),
			attribute.Int("query.max_results", maxResults),
		),
	)
}

// StartStatsSpan starts a span for a usage aggregation.
func StartStatsSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "history.stats")
}
