package delivery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/callrelay/delivery"
	"github.com/xraph/callrelay/id"
	"github.com/xraph/callrelay/observability"
	"github.com/xraph/callrelay/ratelimit"
	"github.com/xraph/callrelay/subscription"
)

type staticLister struct {
	subs  map[string][]subscription.Subscription
	err   error
	calls atomic.Int32
}

func (l *staticLister) ListByTenant(_ context.Context, tenantID string) ([]subscription.Subscription, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return subscription.CloneAll(l.subs[tenantID]), nil
}

func TestDispatchNoSubscriptions(t *testing.T) {
	lister := &staticLister{}
	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{RequestTimeout: time.Second}, nil)

	outcomes, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}
	if outcomes != nil {
		t.Fatalf("expected nil outcomes, got %v", outcomes)
	}
	if lister.calls.Load() != 1 {
		t.Fatalf("expected one lookup, got %d", lister.calls.Load())
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	var hits atomic.Int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	// Closed server: connection refused.
	gone := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	goneURL := gone.URL
	gone.Close()

	lister := &staticLister{subs: map[string][]subscription.Subscription{
		"L1": {
			newTestSubscription("S1", ok.URL),
			newTestSubscription("S2", failing.URL),
			newTestSubscription("S3", goneURL),
			newTestSubscription("S4", ok.URL),
		},
	}}

	reg := prometheus.NewRegistry()
	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{
		RequestTimeout: 2 * time.Second,
		Metrics:        observability.NewMetrics(reg),
		Tracer:         observability.NewTracer(),
	}, nil)

	outcomes, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}

	want := []struct {
		subID   string
		success bool
	}{
		{"S1", true}, {"S2", false}, {"S3", false}, {"S4", true},
	}
	for i, w := range want {
		o := outcomes[i]
		if o.SubscriptionID != w.subID {
			t.Fatalf("outcome %d: expected %s, got %s", i, w.subID, o.SubscriptionID)
		}
		if o.Success != w.success {
			t.Fatalf("outcome %s: expected success=%v, got %+v", w.subID, w.success, o)
		}
		if o.TenantID != "L1" || o.DeliveryID.IsNil() {
			t.Fatalf("outcome %s: missing identifiers: %+v", w.subID, o)
		}
		if !o.Success && o.Error == "" {
			t.Fatalf("outcome %s: failure without error", w.subID)
		}
	}
	if outcomes[1].StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", outcomes[1].StatusCode)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 requests to reach live servers, got %d", hits.Load())
	}
}

func TestDispatchSlowTargetDoesNotBlockOthers(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	var fastAt time.Duration
	var mu sync.Mutex
	start := time.Now()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		fastAt = time.Since(start)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer fast.Close()

	lister := &staticLister{subs: map[string][]subscription.Subscription{
		"L1": {
			newTestSubscription("slow", slow.URL),
			newTestSubscription("fast", fast.URL),
		},
	}}
	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{RequestTimeout: 200 * time.Millisecond}, nil)

	outcomes, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}

	if outcomes[0].Success {
		t.Fatal("expected slow target to time out")
	}
	if !outcomes[1].Success {
		t.Fatalf("expected fast target to succeed, got %+v", outcomes[1])
	}

	mu.Lock()
	defer mu.Unlock()
	if fastAt > 150*time.Millisecond {
		t.Fatalf("fast target waited on slow target: %v", fastAt)
	}
}

func TestDispatchConcurrencyLimit(t *testing.T) {
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	subs := make([]subscription.Subscription, 8)
	for i := range subs {
		subs[i] = newTestSubscription(id.NewDeliveryID().String(), srv.URL)
	}
	lister := &staticLister{subs: map[string][]subscription.Subscription{"L1": subs}}
	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{
		Concurrency:    2,
		RequestTimeout: 2 * time.Second,
	}, nil)

	outcomes, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 8 {
		t.Fatalf("expected 8 outcomes, got %d", len(outcomes))
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent attempts, saw %d", peak.Load())
	}
}

func TestDispatchLookupError(t *testing.T) {
	lookupErr := errors.New("store down")
	d := delivery.NewDispatcher(&staticLister{err: lookupErr}, delivery.DispatcherConfig{}, nil)

	_, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

func TestDispatchRateLimitedPerHost(t *testing.T) {
	var hits atomic.Int32
	busy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer busy.Close()

	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer other.Close()

	lister := &staticLister{subs: map[string][]subscription.Subscription{
		"L1": {
			newTestSubscription("S1", busy.URL+"/a"),
			newTestSubscription("S2", busy.URL+"/b"),
			newTestSubscription("S3", other.URL),
		},
	}}

	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{
		RequestTimeout: time.Second,
		Limiter:        ratelimit.New(0.5, 1),
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	outcomes, err := d.Dispatch(ctx, id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}

	var limited, delivered int
	for _, o := range outcomes[:2] {
		switch {
		case o.Success:
			delivered++
		case strings.HasPrefix(o.Error, "rate limit"):
			limited++
		default:
			t.Fatalf("unexpected outcome for %s: %+v", o.SubscriptionID, o)
		}
	}
	if delivered != 1 || limited != 1 {
		t.Fatalf("same-host outcomes: delivered=%d limited=%d", delivered, limited)
	}
	if hits.Load() != 1 {
		t.Fatalf("busy host hit %d times, want 1", hits.Load())
	}
	if !outcomes[2].Success {
		t.Fatalf("other host should not be paced: %+v", outcomes[2])
	}
}

func TestDispatchUnparsableTargetFailsAlone(t *testing.T) {
	var hits atomic.Int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	lister := &staticLister{subs: map[string][]subscription.Subscription{
		"L1": {
			newTestSubscription("S1", ok.URL),
			newTestSubscription("S2", "://no-scheme"),
			newTestSubscription("S3", ok.URL),
		},
	}}
	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{RequestTimeout: time.Second}, nil)

	outcomes, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].Success || !outcomes[2].Success {
		t.Fatalf("siblings should succeed: %+v", outcomes)
	}
	if outcomes[1].Success || !strings.HasPrefix(outcomes[1].Error, "create request") {
		t.Fatalf("unexpected outcome for bad target: %+v", outcomes[1])
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
}

// panickingTransport panics for one host and forwards everything else.
type panickingTransport struct {
	host string
}

func (p panickingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == p.host {
		panic("transport exploded")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestDispatchPanicReleasesInflight(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	lister := &staticLister{subs: map[string][]subscription.Subscription{
		"L1": {
			newTestSubscription("S1", ok.URL),
			newTestSubscription("S2", "http://boom.invalid/hook"),
		},
	}}

	reg := prometheus.NewRegistry()
	d := delivery.NewDispatcher(lister, delivery.DispatcherConfig{
		RequestTimeout: time.Second,
		Metrics:        observability.NewMetrics(reg),
		Tracer:         observability.NewTracer(),
		Transport:      panickingTransport{host: "boom.invalid"},
	}, nil)

	outcomes, err := d.Dispatch(context.Background(), id.NewEventID(), newTestEvent())
	if err != nil {
		t.Fatal(err)
	}
	if !outcomes[0].Success {
		t.Fatalf("sibling should succeed: %+v", outcomes[0])
	}
	if outcomes[1].Success || !strings.HasPrefix(outcomes[1].Error, "panic:") {
		t.Fatalf("expected panic outcome, got %+v", outcomes[1])
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "callrelay_inflight_deliveries" {
			if val := f.GetMetric()[0].GetGauge().GetValue(); val != 0 {
				t.Fatalf("expected in-flight gauge back at 0, got %f", val)
			}
			return
		}
	}
	t.Fatal("callrelay_inflight_deliveries metric not found")
}
