// Package api exposes the trace core over HTTP/JSON. All routes live
// under the versioned /api/v1 prefix; error responses carry the
// structured body from pkg/fault so callers can branch on code and
// retriable without string matching.
package api

import (
	"log/slog"
	"net/http"

	"github.com/neurorail/core/pkg/audit"
	"github.com/neurorail/core/pkg/governor"
	"github.com/neurorail/core/pkg/identity"
	"github.com/neurorail/core/pkg/lifecycle"
	"github.com/neurorail/core/pkg/store"
	"github.com/neurorail/core/pkg/telemetry"
)

// Server wires the subsystems to their routes.
type Server struct {
	registry  *identity.Registry
	lifecycle *lifecycle.Engine
	audit     *audit.Log
	telemetry *telemetry.Aggregator
	governor  *governor.Governor
	store     *store.Store
	metrics   http.Handler
	limiter   *rateLimiter
	logger    *slog.Logger
}

// Config carries the server's collaborators. Metrics may be nil to leave
// /metrics unmounted.
type Config struct {
	Registry  *identity.Registry
	Lifecycle *lifecycle.Engine
	Audit     *audit.Log
	Telemetry *telemetry.Aggregator
	Governor  *governor.Governor
	Store     *store.Store
	Metrics   http.Handler
}

// NewServer creates a server from its collaborators.
func NewServer(cfg Config) *Server {
	return &Server{
		registry:  cfg.Registry,
		lifecycle: cfg.Lifecycle,
		audit:     cfg.Audit,
		telemetry: cfg.Telemetry,
		governor:  cfg.Governor,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		logger:    slog.Default().With("component", "api"),
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler(rps, burst int) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/identity/mission", s.handleCreateMission)
	mux.HandleFunc("POST /api/v1/identity/plan", s.handleCreatePlan)
	mux.HandleFunc("POST /api/v1/identity/job", s.handleCreateJob)
	mux.HandleFunc("POST /api/v1/identity/attempt", s.handleCreateAttempt)
	mux.HandleFunc("POST /api/v1/identity/resource", s.handleCreateResource)
	mux.HandleFunc("GET /api/v1/identity/trace/{entity_type}/{entity_id}", s.handleTraceChain)
	mux.HandleFunc("GET /api/v1/identity/{entity_type}/{entity_id}", s.handleGetEntity)

	mux.HandleFunc("POST /api/v1/lifecycle/transition/{entity_type}", s.handleTransition)
	mux.HandleFunc("GET /api/v1/lifecycle/state/{entity_type}/{entity_id}", s.handleCurrentState)
	mux.HandleFunc("GET /api/v1/lifecycle/history/{entity_type}/{entity_id}", s.handleHistory)

	mux.HandleFunc("POST /api/v1/audit/log", s.handleAuditLog)
	mux.HandleFunc("GET /api/v1/audit/events", s.handleAuditEvents)
	mux.HandleFunc("GET /api/v1/audit/stats", s.handleAuditStats)

	mux.HandleFunc("GET /api/v1/telemetry/snapshot", s.handleSnapshot)

	mux.HandleFunc("POST /api/v1/governor/decide", s.handleDecide)
	mux.HandleFunc("GET /api/v1/governor/rules", s.handleRules)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	if s.limiter != nil {
		s.limiter.stop()
	}
	s.limiter = newRateLimiter(rps, burst)

	var h http.Handler = mux
	h = s.limiter.middleware(h)
	h = requestLogger(s.logger)(h)
	h = requestID(h)
	return h
}

// Close releases background work started by Handler.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.stop()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  "unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
