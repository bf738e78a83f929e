package callrelay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/callrelay/delivery"
	"github.com/xraph/callrelay/observability"
	"github.com/xraph/callrelay/schema"
	"github.com/xraph/callrelay/signature"
	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// Relay receives subscription lifecycle events and call events, and fans
// each call event out to the tenant's trigger subscriptions.
type Relay struct {
	config     Config
	store      store.Store
	registry   *subscription.Registry
	validator  *schema.Validator
	verifier   *signature.Verifier
	dispatcher *delivery.Dispatcher
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options. Without WithVerifier or
// WithPublicKey, signatures are checked against the platform's published
// key.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.verifier == nil {
		r.verifier = signature.NewPlatformVerifier()
	}
	r.wireServices()
	return r, nil
}

// WithStore sets the persistence backend for the Relay instance.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithVerifier sets the signature verifier for call webhooks.
func WithVerifier(v *signature.Verifier) Option {
	return func(r *Relay) error {
		r.verifier = v
		return nil
	}
}

// WithPublicKey verifies call webhooks against the given PEM public key
// instead of the platform key.
func WithPublicKey(pemBytes []byte) Option {
	return func(r *Relay) error {
		v, err := signature.NewVerifier(pemBytes)
		if err != nil {
			return fmt.Errorf("callrelay: public key: %w", err)
		}
		r.verifier = v
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry spans for dispatch and delivery.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}

// WithConcurrency caps simultaneous deliveries per call event.
func WithConcurrency(n int) Option {
	return func(r *Relay) error {
		if n < 0 {
			return fmt.Errorf("callrelay: concurrency must be >= 0, got %d", n)
		}
		r.config.Concurrency = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		if d <= 0 {
			return fmt.Errorf("callrelay: request timeout must be > 0, got %v", d)
		}
		r.config.RequestTimeout = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight processing on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}

// WithTargetRateLimit paces deliveries to perSecond per subscriber host,
// allowing burst above it. A perSecond of zero disables pacing.
func WithTargetRateLimit(perSecond float64, burst int) Option {
	return func(r *Relay) error {
		if perSecond < 0 {
			return fmt.Errorf("callrelay: target rate limit must be >= 0, got %v", perSecond)
		}
		r.config.TargetRateLimit = perSecond
		r.config.TargetBurst = burst
		return nil
	}
}

// WithUserAgent sets the User-Agent sent on deliveries.
func WithUserAgent(ua string) Option {
	return func(r *Relay) error {
		r.config.UserAgent = ua
		return nil
	}
}
