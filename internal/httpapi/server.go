// Package httpapi wires the ingest coordinator, query engine, and
// auth resolver into the chi-routed HTTP surface described in the
// public API surface: two ingest endpoints, per-family and
// cross-family reads, a minimal export endpoint, and unauthenticated
// health/metrics probes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.healthexport.dev/ingest/internal/auth"
	"go.healthexport.dev/ingest/internal/ingest"
	"go.healthexport.dev/ingest/internal/query"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
	"go.healthexport.dev/ingest/ratelimit"
)

// RateLimitConfig configures the per-request throughput limiter
// applied to every authenticated route (distinct from the resolver's
// own fixed brute-force-mitigation limiter in internal/auth).
type RateLimitConfig struct {
	RequestsPerHour int
	UseUserBased    bool
}

// Server holds every dependency the route handlers call into.
type Server struct {
	conn        *pg.Client
	resolver    *auth.Resolver
	limiter     *ratelimit.Limiter
	rateCfg     RateLimitConfig
	coordinator *ingest.Coordinator
	query       *query.Engine
	audit       auth.EventEmitter
	logger      *log.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAudit sets the sink for the rate-limit-exhaustion audit events
// the limiter middleware emits on every 429.
func WithAudit(emitter auth.EventEmitter) Option {
	return func(s *Server) { s.audit = emitter }
}

// NewServer builds the HTTP server's dependency set. limiter backs
// the hourly per-request rate limit; resolver and
// coordinator/query back auth and the two core operations.
func NewServer(conn *pg.Client, resolver *auth.Resolver, limiter *ratelimit.Limiter, rateCfg RateLimitConfig, coordinator *ingest.Coordinator, queryEngine *query.Engine, options ...Option) *Server {
	s := &Server{
		conn:        conn,
		resolver:    resolver,
		limiter:     limiter,
		rateCfg:     rateCfg,
		coordinator: coordinator,
		query:       queryEngine,
		logger:      log.NewLogger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Routes builds the router. Health and metrics bypass both auth and
// rate limiting; every other route requires a bearer credential and
// is subject to the per-request limiter.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.enforceRateLimit)

		r.Post("/api/v1/ingest", s.handleIngest)
		r.Post("/api/v1/ingest-async", s.handleIngestAsync)
		r.Get("/api/v1/data/{family}", s.handleData)
		r.Get("/api/v1/summary", s.handleSummary)
		r.Get("/api/v1/export/{format}", s.handleExport)
	})

	return r
}
