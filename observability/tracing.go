package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/callrelay"

// noopSpan is a non-recording span returned when tracing is off.
var noopSpan = trace.SpanFromContext(context.Background())

// Tracer provides OpenTelemetry tracing for the call relay. A nil *Tracer
// starts no spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDispatchSpan starts the parent span for one call event's fan-out.
func (t *Tracer) StartDispatchSpan(ctx context.Context, eventID, tenantID string, subscriptions int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan
	}
	return t.tracer.Start(ctx, "callrelay.dispatch",
		trace.WithAttributes(
			attribute.String("callrelay.event_id", eventID),
			attribute.String("callrelay.tenant_id", tenantID),
			attribute.Int("callrelay.subscriptions", subscriptions),
		),
	)
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, eventID, subscriptionID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan
	}
	return t.tracer.Start(ctx, "callrelay.delivery",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("callrelay.delivery_id", deliveryID),
			attribute.String("callrelay.event_id", eventID),
			attribute.String("callrelay.subscription_id", subscriptionID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("callrelay.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("callrelay.error", err))
		span.SetStatus(codes.Error, err)
	}
	span.End()
}
