package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/health"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/service"
	"github.com/BrandonDHaskell/ledgerwatch/internal/metrics"
)

type Dependencies struct {
	Logger *slog.Logger
	Addr   string

	Health     *health.Service
	Query      *service.QueryService
	Devices    *service.DeviceRegistry
	Badges     *service.BadgeService
	Heartbeats *service.HeartbeatService
	Scans      *service.ScanService

	// APITokens maps bearer tokens to roles. Empty disables authorization.
	APITokens map[string]string

	// Ready reports whether the backing stores are reachable. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	router     chi.Router
	auth       *Authorizer
	d          Dependencies
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	s := &Server{
		logger: d.Logger,
		auth:   NewAuthorizer(d.APITokens),
		d:      d,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(func(next http.Handler) http.Handler { return loggingMiddleware(d.Logger, next) })
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())

	// Reader-facing endpoints.
	r.Post("/v1/heartbeat", s.handleHeartbeat)
	r.Post("/v1/scans", s.handleScan)

	view := s.auth.Require(PermView)
	manage := s.auth.Require(PermManage)

	r.Route("/ledger", func(r chi.Router) {
		r.With(view).Get("/health", s.handleHealth)
		r.With(view).Get("/health-history", s.handleHealthHistory)
		r.With(manage).Delete("/health-cache", s.handleInvalidateHealth)

		r.With(view).Get("/events", s.handleListEvents)
		r.With(manage).Post("/events/processed", s.handleMarkProcessed)
		r.With(view).Get("/events/{sequenceId}", s.handleGetEvent)

		r.With(view).Get("/devices", s.handleListDevices)
		r.With(view).Get("/devices/{deviceId}", s.handleGetDevice)
	})
	r.With(view).Get("/badges/{badge}/analytics", s.handleBadgeAnalytics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.d.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.d.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// internalError logs err and answers with a detail-free 500.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed", "error", err, "request_id", requestIDFrom(r.Context()))
	writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
}
