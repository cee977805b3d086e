package nest

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port                 int
	chronicleDatabaseURL string
	logger               *slog.Logger
	version              string
	reasoner             Reasoner
	eventHooks           []EventHook
	routeRegistrars      []RouteRegistrar
	middlewares          []Middleware
}

// WithPort overrides the TCP port from config (NEST_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithChronicleDatabaseURL forces the postgres Chronicle backend with the
// given connection string, overriding CHRONICLE_BACKEND and
// CHRONICLE_DATABASE_URL.
func WithChronicleDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.chronicleDatabaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithReasoner replaces the configured Reasoner (HTTP client or mock).
// Only the last call wins. The override receives every role's calls, so
// the implementation must honor role routing itself.
func WithReasoner(r Reasoner) Option {
	return func(o *resolvedOptions) { o.reasoner = r }
}

// WithEventHook registers a hook receiving every deliberation lifecycle
// event. Multiple hooks may be registered; all receive every event. Hook
// methods run in goroutines — they must not block indefinitely.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
