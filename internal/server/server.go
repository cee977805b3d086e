// Package server provides the HTTP surface of the gateway: mission
// submission, chronicle reads, appeals, Article 50, and the SSE streams.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/RedBackRubbish/TheNest/api"
	"github.com/RedBackRubbish/TheNest/internal/auth"
	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/ratelimit"
)

// ServerConfig wires the server's dependencies.
type ServerConfig struct {
	Elder               *elder.Elder
	Broker              *events.Broker
	JWTMgr              *auth.JWTManager
	Keyring             *auth.Keyring
	Logger              *slog.Logger
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	RateLimiter         ratelimit.Limiter
	CORSAllowedOrigins  []string
	Version             string
	MCPHandler          http.Handler // Optional; mounted at /mcp when non-nil.

	// ExtraRoutes registers additional routes on the shared mux after the
	// built-in surface. Each registrar receives the role middleware factory
	// so extension routes use the same auth chain.
	ExtraRoutes []func(*http.ServeMux, RoleMiddlewareFn)
	// Middlewares wrap the root handler outermost, in registration order.
	Middlewares []func(http.Handler) http.Handler
}

// RoleMiddlewareFn builds role-gating middleware for extension routes.
type RoleMiddlewareFn func(auth.Role) func(http.Handler) http.Handler

// Server is the HTTP server for the gateway.
type Server struct {
	cfg      ServerConfig
	elder    *elder.Elder
	broker   *events.Broker
	jwtMgr   *auth.JWTManager
	keyring  *auth.Keyring
	logger   *slog.Logger
	handlers *Handlers
	httpSrv  *http.Server
}

// New creates a Server and registers all routes.
func New(cfg ServerConfig) *Server {
	s := &Server{
		cfg:     cfg,
		elder:   cfg.Elder,
		broker:  cfg.Broker,
		jwtMgr:  cfg.JWTMgr,
		keyring: cfg.Keyring,
		logger:  cfg.Logger,
	}
	s.handlers = NewHandlers(HandlersDeps{
		Elder:               cfg.Elder,
		Broker:              cfg.Broker,
		JWTMgr:              cfg.JWTMgr,
		Keyring:             cfg.Keyring,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}

	// Middleware chain, outermost first: request ID, security headers,
	// tracing, logging, rate limit, auth, recovery.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger)(handler)
	handler = s.authMiddleware(handler)
	handler = ratelimit.Middleware(limiter, cfg.Logger)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = corsMiddleware(cfg.CORSAllowedOrigins)(handler)
	}
	// Extension middlewares wrap outermost, first registered outermost.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		// WriteTimeout must cover a full deliberation plus SSE streaming;
		// per-handler deadlines are managed with http.ResponseController.
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// registerRoutes wires the HTTP surface. The bare legacy paths are kept
// alongside /v1 so existing callers keep working.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	h := s.handlers
	keeper := s.requireRole(auth.RoleKeeper)

	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPISpec)
	})

	// Mission surface.
	mux.Handle("POST /v1/missions", keeper(http.HandlerFunc(h.HandleRunMission)))
	mux.Handle("POST /missions", keeper(http.HandlerFunc(h.HandleRunMission)))
	mux.Handle("POST /v1/missions/stream", keeper(http.HandlerFunc(h.HandleMissionStream)))

	// Chronicle reads.
	mux.HandleFunc("GET /v1/chronicle/search", h.HandleChronicleSearch)
	mux.HandleFunc("GET /chronicle/search", h.HandleChronicleSearch)
	mux.HandleFunc("GET /v1/chronicle/case/{case_id}", h.HandleGetCase)
	mux.HandleFunc("GET /chronicle/case/{case_id}", h.HandleGetCase)
	mux.HandleFunc("GET /v1/chronicle/case/{case_id}/appeals", h.HandleGetAppeals)
	mux.HandleFunc("GET /chronicle/case/{case_id}/appeals", h.HandleGetAppeals)
	mux.HandleFunc("GET /v1/chronicle/stats", h.HandleChronicleStats)
	mux.HandleFunc("GET /v1/chronicle/integrity", h.HandleChronicleIntegrity)

	// Appeals.
	mux.Handle("POST /v1/appeals", keeper(http.HandlerFunc(h.HandleAppeal)))
	mux.Handle("POST /appeals", keeper(http.HandlerFunc(h.HandleAppeal)))

	// Martial law. Keeper only, always.
	mux.Handle("POST /v1/article50", keeper(http.HandlerFunc(h.HandleArticle50)))

	// Event firehose.
	mux.HandleFunc("GET /v1/events", h.HandleSubscribe)

	// Token exchange.
	mux.HandleFunc("POST /v1/auth/token", h.HandleIssueToken)

	if s.cfg.MCPHandler != nil {
		mux.Handle("/mcp", s.cfg.MCPHandler)
	}

	for _, register := range s.cfg.ExtraRoutes {
		register(mux, s.requireRole)
	}
}

// Handler returns the fully wrapped root handler. Tests mount it on an
// httptest server instead of binding a port.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Handlers exposes the handler set (used for admin seeding in main).
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
