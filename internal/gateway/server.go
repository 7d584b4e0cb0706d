// Package gateway serves the counting workflow to browsers: a websocket per
// tab carrying one editor, plus read-only totals, health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dyluth/tally/internal/editor"
	"github.com/dyluth/tally/internal/logging"
	"github.com/dyluth/tally/internal/metrics"
	"github.com/dyluth/tally/internal/reconciler"
	"github.com/dyluth/tally/pkg/collab"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP gateway.
type Server struct {
	ledger     *ledger.Client
	channel    *collab.Channel
	logger     *slog.Logger
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	editorOpts []editor.Option
	pool       *sessionPool
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records gateway activity in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithEditorOptions applies opts to every editor the gateway creates.
func WithEditorOptions(opts ...editor.Option) Option {
	return func(s *Server) { s.editorOpts = append(s.editorOpts, opts...) }
}

// New creates a gateway over a ledger client and a collaboration channel.
func New(client *ledger.Client, channel *collab.Channel, opts ...Option) (*Server, error) {
	if client == nil {
		return nil, fmt.Errorf("ledger client cannot be nil")
	}
	if channel == nil {
		return nil, fmt.Errorf("collaboration channel cannot be nil")
	}

	s := &Server{
		ledger:  client,
		channel: channel,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pool = newSessionPool(client,
		reconciler.WithLogger(s.logger),
		reconciler.WithMetrics(s.metrics),
	)
	return s, nil
}

// Handler returns the gateway's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/sessions/{session}/totals", s.handleTotals)
	r.Get("/sessions/{session}/totals/{item}", s.handleItemTotals)
	r.Get("/locations", s.handleLocations)
	r.Get("/ws/{session}", s.handleWebSocket)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.pool.closeAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.pool.closeAll()
	return err
}

// handleTotals handles GET /sessions/{session}/totals.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	recon, release, err := s.pool.acquire(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.logger.Error("loading session failed", "session", chi.URLParam(r, "session"), "error", err)
		http.Error(w, "failed to load session", http.StatusServiceUnavailable)
		return
	}
	defer release()

	writeJSON(w, http.StatusOK, recon.AllTotals())
}

// handleItemTotals handles GET /sessions/{session}/totals/{item}. An item with
// no records is reported with is_counted false rather than 404.
func (s *Server) handleItemTotals(w http.ResponseWriter, r *http.Request) {
	recon, release, err := s.pool.acquire(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.logger.Error("loading session failed", "session", chi.URLParam(r, "session"), "error", err)
		http.Error(w, "failed to load session", http.StatusServiceUnavailable)
		return
	}
	defer release()

	writeJSON(w, http.StatusOK, recon.Totals(chi.URLParam(r, "item")))
}

// handleLocations handles GET /locations.
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.ledger.ListLocations(r.Context())
	if err != nil {
		s.logger.Error("listing locations failed", "error", err)
		http.Error(w, "failed to list locations", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}
