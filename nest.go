// Package nest is the public API for embedding the governed code
// generation gateway.
//
// Embedding consumers import this package to construct and extend the
// server without forking it:
//
//	app, err := nest.New(
//	    nest.WithVersion(version),
//	    nest.WithLogger(logger),
//	    nest.WithEventHook(myAuditHook{}),
//	    nest.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: nest (root) imports
// internal/*, but internal/* never imports nest (root). Public types
// (Event, Role) are standalone structs with no internal imports; the
// adapters live here because this is the only file that sees both sides
// of the boundary.
package nest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/RedBackRubbish/TheNest/internal/auth"
	"github.com/RedBackRubbish/TheNest/internal/chronicle"
	"github.com/RedBackRubbish/TheNest/internal/config"
	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/mcp"
	"github.com/RedBackRubbish/TheNest/internal/model"
	"github.com/RedBackRubbish/TheNest/internal/ratelimit"
	"github.com/RedBackRubbish/TheNest/internal/reasoner"
	"github.com/RedBackRubbish/TheNest/internal/senate"
	"github.com/RedBackRubbish/TheNest/internal/server"
	"github.com/RedBackRubbish/TheNest/internal/telemetry"
)

// App is the gateway lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	chron        *chronicle.Chronicle
	eld          *elder.Elder
	broker       *events.Broker
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the gateway. It opens the Chronicle backend, wires the
// Senate and Elder, and returns a ready-to-run App. It does NOT start
// any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.chronicleDatabaseURL != "" {
		cfg.ChronicleBackend = "postgres"
		cfg.ChronicleDatabaseURL = o.chronicleDatabaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("thenest starting", "version", version, "port", cfg.Port, "chronicle_backend", cfg.ChronicleBackend)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the Chronicle backend.
	store, err := newStore(cfg)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("chronicle: %w", err)
	}
	chron := chronicle.New(store, cfg.ChronicleSecured, logger)

	// Build the Reasoner — external override, HTTP client, or the
	// deterministic mock when no cloud endpoint is configured.
	r := buildReasoner(cfg, o.reasoner, logger)

	// Event broker plus any registered hooks.
	broker := events.NewBroker(cfg.EventBufferSize, logger)
	emitter := events.Multi{broker}
	for _, hook := range o.eventHooks {
		emitter = append(emitter, &eventHookAdapter{hook: hook, logger: logger})
	}

	// Senate and Elder. The Elder claims the sole writer handle here.
	sen := senate.New(r, logger)
	eld, err := elder.New(sen, chron, emitter, logger)
	if err != nil {
		_ = chron.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("elder: %w", err)
	}

	// Auth.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		_ = chron.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}
	keyring := auth.NewKeyring()

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// MCP server.
	mcpSrv := mcp.New(eld, version, logger)

	// Adapt route registrars from public nest.RouteRegistrar to the
	// internal server format.
	var extraRoutes []func(*http.ServeMux, server.RoleMiddlewareFn)
	for _, fn := range o.routeRegistrars {
		fn := fn
		extraRoutes = append(extraRoutes, func(mux *http.ServeMux, roleFn server.RoleMiddlewareFn) {
			fn(mux, &authHelperImpl{roleFn: roleFn})
		})
	}

	// Adapt middlewares from nest.Middleware.
	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		mw := mw
		middlewares = append(middlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	// Create HTTP server.
	srv := server.New(server.ServerConfig{
		Elder:               eld,
		Broker:              broker,
		JWTMgr:              jwtMgr,
		Keyring:             keyring,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		RateLimiter:         limiter,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		Version:             version,
		MCPHandler:          mcpSrv.HTTPHandler(),
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	// Seed the keeper API key.
	if err := srv.Handlers().SeedAdmin(cfg.AdminAPIKey); err != nil {
		_ = chron.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("admin seed: %w", err)
	}

	return &App{
		cfg:          cfg,
		chron:        chron,
		eld:          eld,
		broker:       broker,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown drains in-flight HTTP requests, then closes the Chronicle and
// the telemetry providers. Persistence happens inside request handling,
// so there is no buffered state to flush.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("thenest shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	_ = a.limiter.Close()
	if err := a.chron.Close(); err != nil {
		a.logger.Error("chronicle close error", "error", err)
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("thenest stopped")
	return nil
}

// newStore opens the configured Chronicle backend.
func newStore(cfg config.Config) (chronicle.Store, error) {
	switch cfg.ChronicleBackend {
	case "file":
		return chronicle.NewFileStore(cfg.ChroniclePath)
	case "sqlite":
		return chronicle.NewSQLiteStore(cfg.ChroniclePath)
	case "postgres":
		return chronicle.NewPostgresStore(context.Background(), cfg.ChronicleDatabaseURL)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.ChronicleBackend)
	}
}

// buildReasoner resolves the Reasoner: external override first, then the
// HTTP client, then the deterministic mock.
func buildReasoner(cfg config.Config, override Reasoner, logger *slog.Logger) reasoner.Reasoner {
	if override != nil {
		logger.Info("reasoner: external override")
		return &reasonerAdapter{r: override}
	}

	registry := reasoner.DefaultRegistry()
	if cfg.PrecheckModel != "" {
		registry.PreCheck = cfg.PrecheckModel
	}
	if cfg.ForgeModel != "" {
		registry.Forge = cfg.ForgeModel
	}
	if cfg.ForgeBackstopModel != "" {
		registry.ForgeBackstop = cfg.ForgeBackstopModel
	}
	if cfg.AdversaryModel != "" {
		registry.Adversary = cfg.AdversaryModel
	}
	if cfg.FinalModel != "" {
		registry.Final = cfg.FinalModel
	}

	client := reasoner.NewClient(reasoner.Config{
		CloudURL:     cfg.ReasonerCloudURL,
		CloudKey:     cfg.ReasonerCloudKey,
		SovereignURL: cfg.ReasonerSovereignURL,
		Registry:     registry,
		Timeout:      cfg.ReasonerTimeout,
	}, logger)
	if client == nil {
		logger.Warn("reasoner: no cloud endpoint configured, using deterministic mock")
		return reasoner.NewMock()
	}
	logger.Info("reasoner: http client", "cloud_url", cfg.ReasonerCloudURL, "sovereign_url", cfg.ReasonerSovereignURL)
	return client
}

// ── Adapters (defined here because this file imports both sides) ───────

// reasonerAdapter wraps a public nest.Reasoner to satisfy the internal
// reasoner.Reasoner interface.
type reasonerAdapter struct {
	r Reasoner
}

func (a *reasonerAdapter) Think(ctx context.Context, role reasoner.Role, systemPrompt, userPrompt string, opts reasoner.Options) (map[string]any, error) {
	return a.r.Think(ctx, string(role), systemPrompt, userPrompt, ReasonerOptions{
		Temperature:    opts.Temperature,
		GovernanceMode: opts.GovernanceMode,
		ExplicitModel:  opts.ExplicitModel,
	})
}

// eventHookAdapter wraps a public nest.EventHook as an events.Emitter.
// Hooks run in goroutines with a bounded deadline so a slow hook cannot
// stall the deliberation pipeline.
type eventHookAdapter struct {
	hook   EventHook
	logger *slog.Logger
}

func (a *eventHookAdapter) Emit(e model.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.hook.OnEvent(ctx, toPublicEvent(e)); err != nil {
			a.logger.Warn("event hook failed", "error", err, "event_type", e.Type)
		}
	}()
}

// authHelperImpl implements nest.AuthHelper using an internal
// server.RoleMiddlewareFn. Bridges the public interface to the internal
// RBAC middleware without importing server from extension code.
type authHelperImpl struct {
	roleFn server.RoleMiddlewareFn
}

func (a *authHelperImpl) RequireRole(role Role) func(http.Handler) http.Handler {
	return a.roleFn(auth.Role(role))
}

// toPublicEvent converts an internal model.Event to the public nest.Event.
func toPublicEvent(e model.Event) Event {
	return Event{
		Type:      string(e.Type),
		MissionID: e.MissionID,
		Payload:   e.Payload,
		EmittedAt: e.EmittedAt,
	}
}
