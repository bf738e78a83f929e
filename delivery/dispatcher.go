package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/callrelay/event"
	"github.com/xraph/callrelay/id"
	"github.com/xraph/callrelay/observability"
	"github.com/xraph/callrelay/ratelimit"
	"github.com/xraph/callrelay/subscription"
)

// Lister returns a snapshot of a tenant's subscriptions.
type Lister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]subscription.Subscription, error)
}

// DispatcherConfig holds dispatcher configuration.
type DispatcherConfig struct {
	// Concurrency caps simultaneous attempts per event. Zero means one
	// goroutine per subscription.
	Concurrency    int
	RequestTimeout time.Duration
	UserAgent      string
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer

	// Limiter paces attempts per target host. Nil disables pacing.
	Limiter *ratelimit.Limiter

	// Transport overrides the HTTP transport used for deliveries.
	Transport http.RoundTripper
}

// Dispatcher delivers a call event to every subscription of its tenant.
type Dispatcher struct {
	subs   Lister
	sender *Sender
	config DispatcherConfig
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher reading subscriptions from subs.
func NewDispatcher(subs Lister, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	sender := NewSender(cfg.RequestTimeout, cfg.UserAgent)
	if cfg.Transport != nil {
		sender.client.Transport = cfg.Transport
	}
	return &Dispatcher{
		subs:   subs,
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Dispatch sends evt to each subscription of evt.TenantID and returns one
// outcome per subscription, in subscription order. A tenant without
// subscriptions yields nil and no HTTP traffic. The only error is a failed
// subscription lookup; delivery failures are reported in the outcomes.
//
// ctx should not be tied to the inbound request: attempts derive their
// timeouts from it.
func (d *Dispatcher) Dispatch(ctx context.Context, eventID id.ID, evt event.CallEvent) ([]Outcome, error) {
	subs, err := d.subs.ListByTenant(ctx, evt.TenantID)
	if err != nil {
		return nil, fmt.Errorf("callrelay/delivery: lookup %s: %w", evt.TenantID, err)
	}
	d.config.Metrics.RecordFanout(len(subs))
	if len(subs) == 0 {
		d.logger.DebugContext(ctx, "no subscriptions for tenant",
			"event_id", eventID, "tenant_id", evt.TenantID)
		return nil, nil
	}

	ctx, span := d.config.Tracer.StartDispatchSpan(ctx, eventID.String(), evt.TenantID, len(subs))
	defer span.End()

	outcomes := make([]Outcome, len(subs))

	var g errgroup.Group
	if d.config.Concurrency > 0 {
		g.SetLimit(d.config.Concurrency)
	}
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, eventID, evt, sub)
			return nil
		})
	}
	_ = g.Wait() // attempts never return errors

	return outcomes, nil
}

// deliver performs one isolated attempt and records its outcome.
func (d *Dispatcher) deliver(ctx context.Context, eventID id.ID, evt event.CallEvent, sub subscription.Subscription) (out Outcome) {
	deliveryID := id.NewDeliveryID()
	out = Outcome{
		DeliveryID:     deliveryID,
		SubscriptionID: sub.ID,
		TenantID:       evt.TenantID,
		TargetURL:      sub.TargetURL,
	}

	ctx, span := d.config.Tracer.StartDeliverySpan(ctx, deliveryID.String(), eventID.String(), sub.ID)

	var result Result
	defer func() {
		d.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, result.Error)
	}()
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("panic: %v", r)
			out.Success = false
			out.Error = result.Error
			d.config.Metrics.RecordDelivery("failed", 0)
			d.logger.ErrorContext(ctx, "delivery panicked",
				"delivery_id", deliveryID,
				"subscription_id", sub.ID,
				"tenant_id", evt.TenantID,
				"error", out.Error,
			)
		}
	}()

	if err := d.config.Limiter.Wait(ctx, ratelimit.HostKey(sub.TargetURL)); err != nil {
		result.Error = err.Error()
		d.config.Metrics.RecordDelivery("rate_limited", 0)
		out.Error = fmt.Sprintf("rate limit: %v", err)
		d.logger.WarnContext(ctx, "delivery rate limited",
			"delivery_id", deliveryID,
			"subscription_id", sub.ID,
			"tenant_id", evt.TenantID,
			"target_url", sub.TargetURL,
			"error", err,
		)
		return out
	}

	result = d.send(ctx, eventID, evt, sub, deliveryID)

	out.Success = result.Success()
	out.StatusCode = result.StatusCode
	out.Error = result.Error
	out.Latency = time.Duration(result.LatencyMs) * time.Millisecond

	latencySeconds := float64(result.LatencyMs) / 1000.0
	if out.Success {
		d.config.Metrics.RecordDelivery("delivered", latencySeconds)
		d.logger.DebugContext(ctx, "delivered",
			"delivery_id", deliveryID,
			"subscription_id", sub.ID,
			"status", result.StatusCode,
			"latency_ms", result.LatencyMs,
		)
		return out
	}

	d.config.Metrics.RecordDelivery("failed", latencySeconds)
	d.logger.WarnContext(ctx, "delivery failed",
		"delivery_id", deliveryID,
		"subscription_id", sub.ID,
		"tenant_id", evt.TenantID,
		"target_url", sub.TargetURL,
		"status", result.StatusCode,
		"error", result.Error,
	)
	return out
}

// send runs the HTTP attempt while it is counted as in flight.
func (d *Dispatcher) send(ctx context.Context, eventID id.ID, evt event.CallEvent, sub subscription.Subscription, deliveryID id.ID) Result {
	d.config.Metrics.Inflight(1)
	defer d.config.Metrics.Inflight(-1)
	return d.sender.Send(ctx, sub.TargetURL, NewPayload(eventID, evt, sub), deliveryID)
}
