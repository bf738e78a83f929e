// Package server assembles a runnable call relay process: configuration,
// logging, the subscription backend, the relay itself, and its HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/grove"

	"github.com/xraph/callrelay"
	"github.com/xraph/callrelay/api"
	"github.com/xraph/callrelay/observability"
	"github.com/xraph/callrelay/store"
)

// Server is a configured call relay process.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	store   store.Store
	groveDB *grove.DB
	relay   *callrelay.Relay
	handler http.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithStore uses s instead of opening the configured backend.
func WithStore(s store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithGroveDB supplies the database for the sqlite, postgres and mongo
// drivers. The server takes ownership of db.
func WithGroveDB(db *grove.DB) Option {
	return func(srv *Server) { srv.groveDB = db }
}

// WithLogger sets the process logger instead of building one from config.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New builds a Server from cfg. The returned server owns its store.
func New(ctx context.Context, cfg Config, opts ...Option) (*Server, error) {
	srv := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.logger == nil {
		srv.logger = NewLogger(os.Stderr, cfg)
	}

	if srv.store == nil {
		var (
			s   store.Store
			err error
		)
		if srv.groveDB != nil {
			s, err = OpenGroveStore(cfg.Store, srv.groveDB)
		} else {
			s, err = OpenStore(ctx, cfg.Store, srv.logger)
		}
		if err != nil {
			return nil, err
		}
		srv.store = s
	}

	relayOpts := append([]callrelay.Option{
		callrelay.WithStore(srv.store),
		callrelay.WithLogger(srv.logger),
		callrelay.WithTracer(observability.NewTracer()),
	}, cfg.ToRelayOptions()...)

	if cfg.PublicKeyFile != "" {
		pemBytes, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			srv.closeStore()
			return nil, fmt.Errorf("callrelay/server: read public key: %w", err)
		}
		relayOpts = append(relayOpts, callrelay.WithPublicKey(pemBytes))
	}

	var reg *prometheus.Registry
	if cfg.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		relayOpts = append(relayOpts, callrelay.WithMetrics(observability.NewMetrics(reg)))
	}

	r, err := callrelay.New(relayOpts...)
	if err != nil {
		srv.closeStore()
		return nil, fmt.Errorf("callrelay/server: %w", err)
	}
	srv.relay = r

	h := api.NewHandler(r, srv.logger)
	if reg != nil {
		h.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	srv.handler = h

	return srv, nil
}

// Handler returns the HTTP handler serving the relay.
func (s *Server) Handler() http.Handler { return s.handler }

// Relay returns the underlying relay.
func (s *Server) Relay() *callrelay.Relay { return s.relay }

// Run starts the relay and serves HTTP on the configured address until ctx
// is cancelled, then drains in-flight work and closes the store.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.closeStore()
		return fmt.Errorf("callrelay/server: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.closeStore()

	if err := s.relay.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "call relay listening", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("callrelay/server: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	var errs []error
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("callrelay/server: http shutdown: %w", err))
	}
	if err := s.relay.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return callrelay.DefaultConfig().ShutdownTimeout
}

func (s *Server) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", "error", err)
	}
}
