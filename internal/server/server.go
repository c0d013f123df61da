// Package server exposes the store over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /api/v1/readings           full export, ?format=csv|json|pb|parquet
//	DELETE /api/v1/readings           clear log and aggregate
//	GET    /api/v1/readings/window    newest ?points=N, ?format=
//	GET    /api/v1/aggregate          min/max, unset fields are null
//	GET    /api/v1/summary            ?points=N
//	POST   /api/v1/sql                read-only SQL, body is the query
//	GET    /api/v1/stats
//	GET    /metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/metrics"
	"github.com/xtxerr/atmolog/internal/storage"
	"github.com/xtxerr/atmolog/internal/storage/aggregate"
	"github.com/xtxerr/atmolog/internal/storage/export"
	"github.com/xtxerr/atmolog/internal/storage/query"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

var log = logging.Component("server")

// =============================================================================
// Backend
// =============================================================================

// Backend is the part of the store the HTTP layer serves.
type Backend interface {
	WriteFull(w io.Writer, f export.Format) (int, error)
	WriteWindow(w io.Writer, f export.Format, k int) (int, error)
	Aggregate() types.Aggregate
	Summary(ctx context.Context, k int) (aggregate.Summary, error)
	ExecuteSQL(ctx context.Context, sql string) (*query.SQLResult, error)
	Clear() bool
	Stats() storage.StoreStats
}

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "0.0.0.0:8080").
	Listen string

	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string

	// MaxSQLBody limits the size of a posted query.
	MaxSQLBody int64

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// Version is reported by /health.
	Version string
}

// =============================================================================
// Server
// =============================================================================

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	backend Backend
	metrics *metrics.Metrics
	handler http.Handler
}

// New creates a server. m may be nil.
func New(cfg Config, backend Backend, m *metrics.Metrics) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.MaxSQLBody <= 0 {
		cfg.MaxSQLBody = config.DefaultMaxSQLBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		metrics: m,
	}
	s.handler = s.wrap(s.routes())
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/readings", s.handleReadings).Methods(http.MethodGet)
	api.HandleFunc("/readings", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/readings/window", s.handleWindow).Methods(http.MethodGet)
	api.HandleFunc("/aggregate", s.handleAggregate).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/sql", s.handleSQL).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// wrap applies the outer middleware: request IDs, CORS and panic recovery.
func (s *Server) wrap(h http.Handler) http.Handler {
	h = requestID(h)
	if len(s.cfg.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.cfg.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.ExposedHeaders([]string{RequestIDHeader, "Content-Disposition"}),
			handlers.MaxAge(3600),
		)(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log}),
		handlers.PrintRecoveryStack(false),
	)(h)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("handler panic", "panic", fmt.Sprint(v...))
}
