package callrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/callrelay/delivery"
	"github.com/xraph/callrelay/event"
	"github.com/xraph/callrelay/id"
	"github.com/xraph/callrelay/ratelimit"
	"github.com/xraph/callrelay/schema"
	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// Receipt is an authenticated, parsed call webhook awaiting processing.
type Receipt struct {
	EventID    id.ID
	ReceivedAt time.Time

	// Signed reports whether a signature header was present and verified.
	// Unsigned payloads are accepted.
	Signed bool

	Payload map[string]any
}

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() {
	r.registry = subscription.NewRegistry(r.store, r.logger)

	r.dispatcher = delivery.NewDispatcher(r.registry, delivery.DispatcherConfig{
		Concurrency:    r.config.Concurrency,
		RequestTimeout: r.config.RequestTimeout,
		UserAgent:      r.config.UserAgent,
		Metrics:        r.metrics,
		Tracer:         r.tracer,
		Limiter:        ratelimit.New(r.config.TargetRateLimit, r.config.TargetBurst),
	}, r.logger)

	r.validator = schema.NewValidator()
}

// Start prepares the backend by running its migrations.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.store.Migrate(ctx); err != nil {
		return fmt.Errorf("callrelay: migrate store: %w", err)
	}
	return nil
}

// Stop refuses new work and waits for in-flight processing to finish, up
// to ShutdownTimeout or ctx's deadline, whichever comes first.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	if r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "shutdown timed out with call events in flight")
		return fmt.Errorf("callrelay: stop: %w", ctx.Err())
	}
}

// Ready reports whether the store is reachable.
func (r *Relay) Ready(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// HandleLifecycle validates and applies a subscription lifecycle webhook.
//
// Errors wrapping ErrMalformedPayload or *subscription.ValidationError are
// client errors; anything else is a persistence failure.
func (r *Relay) HandleLifecycle(ctx context.Context, raw []byte) (subscription.Transition, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return "", err
	}

	if err := r.validator.ValidateLifecycle(doc); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}

	lc, err := subscription.ParseLifecycle(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	transition, err := r.registry.Apply(ctx, lc)
	if err != nil {
		r.logger.ErrorContext(ctx, "lifecycle apply failed",
			"action", lc.Action,
			"tenant_id", lc.TenantID,
			"subscription_id", lc.Subscription.ID,
			"error", err,
		)
		return "", err
	}

	r.metrics.RecordLifecycle(string(transition))
	r.logger.InfoContext(ctx, "subscription lifecycle",
		"action", lc.Action,
		"transition", transition,
		"tenant_id", lc.TenantID,
		"subscription_id", lc.Subscription.ID,
		"workflow_id", lc.Subscription.WorkflowID,
	)
	return transition, nil
}

// Ingest authenticates and parses a call webhook. A non-empty signature
// header must verify against raw or ErrInvalidSignature is returned; an
// empty header is accepted unauthenticated. No processing happens here.
func (r *Relay) Ingest(raw []byte, signatureHeader string) (*Receipt, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		r.metrics.RecordReceived("malformed")
		return nil, err
	}

	signed := signatureHeader != ""
	if signed && !r.verifier.Verify(raw, signatureHeader) {
		r.metrics.RecordReceived("rejected")
		return nil, ErrInvalidSignature
	}

	if signed {
		r.metrics.RecordReceived("verified")
	} else {
		r.metrics.RecordReceived("unsigned")
	}

	return &Receipt{
		EventID:    id.NewEventID(),
		ReceivedAt: time.Now().UTC(),
		Signed:     signed,
		Payload:    doc,
	}, nil
}

// Process normalizes the receipt and dispatches it to the tenant's
// subscriptions. Payloads that are not call events return
// event.ErrNotApplicable; call events without a tenant return
// event.ErrMissingTenant.
func (r *Relay) Process(ctx context.Context, rc *Receipt) ([]delivery.Outcome, error) {
	evt, err := event.Normalize(rc.Payload, rc.ReceivedAt)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrNotApplicable):
			r.metrics.RecordIgnored("not_applicable")
		case errors.Is(err, event.ErrMissingTenant):
			r.metrics.RecordIgnored("missing_tenant")
		}
		return nil, err
	}

	outcomes, err := r.dispatcher.Dispatch(ctx, rc.EventID, evt)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	r.logger.InfoContext(ctx, "call event dispatched",
		"event_id", rc.EventID,
		"tenant_id", evt.TenantID,
		"call_status", evt.CallStatus,
		"subscriptions", len(outcomes),
		"failed", failed,
	)
	return outcomes, nil
}

// ProcessAsync runs Process in the background, detached from ctx's
// cancellation. Errors are logged, never returned. It returns ErrStopped
// after Stop has been called.
func (r *Relay) ProcessAsync(ctx context.Context, rc *Receipt) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer r.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.ErrorContext(ctx, "call event processing panicked",
					"event_id", rc.EventID, "panic", p)
			}
		}()

		_, err := r.Process(ctx, rc)
		switch {
		case err == nil:
		case errors.Is(err, event.ErrNotApplicable):
			r.logger.DebugContext(ctx, "payload is not a call event", "event_id", rc.EventID)
		case errors.Is(err, event.ErrMissingTenant):
			r.logger.WarnContext(ctx, "call event without tenant id", "event_id", rc.EventID)
		default:
			r.logger.ErrorContext(ctx, "call event processing failed",
				"event_id", rc.EventID, "error", err)
		}
	}()
	return nil
}

// Registry returns the subscription registry.
func (r *Relay) Registry() *subscription.Registry {
	return r.registry
}

// Store returns the underlying store.
func (r *Relay) Store() store.Store {
	return r.store
}

// decodeObject parses raw as a JSON object.
func decodeObject(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}
	return doc, nil
}
