package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/spec-kit/sla-engine"

// Tracer returns the engine tracer from the globally installed provider.
// Without a provider every span is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartScanSpan starts a span for one detector scan.
func StartScanSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "sla.scan",
		trace.WithAttributes(attribute.String("component", "sla-detector")),
	)
}

// StartTicketSpan starts a span for classifying one ticket.
func StartTicketSpan(ctx context.Context, ticketID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "sla.check_ticket",
		trace.WithAttributes(
			attribute.String("ticket.id", ticketID),
			attribute.String("component", "sla-detector"),
		),
	)
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
