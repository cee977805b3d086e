package nest

import (
	"context"
	"net/http"
)

// Reasoner is the pluggable model backend. When provided via
// WithReasoner, it replaces the HTTP client and the mock for every role.
// Implementations return a decoded JSON object per call; transport-level
// failures should be reported as objects with a "status" of "FAILED"
// rather than Go errors, so a single model outage degrades one stage
// instead of aborting the deliberation.
type Reasoner interface {
	Think(ctx context.Context, role, systemPrompt, userPrompt string, opts ReasonerOptions) (map[string]any, error)
}

// ReasonerOptions mirrors the internal per-call options without forcing
// an internal import on external consumers.
type ReasonerOptions struct {
	// Temperature overrides the role default when non-nil.
	Temperature *float64
	// GovernanceMode reroutes the forge role to the aligned backstop model.
	GovernanceMode bool
	// ExplicitModel pins the call to a named model.
	ExplicitModel string
}

// EventHook receives async notifications for deliberation lifecycle
// events. Multiple hooks may be registered via multiple WithEventHook
// calls. Failures are logged but never fail the originating mission.
type EventHook interface {
	OnEvent(ctx context.Context, event Event) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extension routes share the mux, auth chain, and OTEL instrumentation
// with the built-in routes. The function is called once during App.New()
// after all built-in routes are registered.
type RouteRegistrar func(mux *http.ServeMux, auth AuthHelper)

// AuthHelper provides RBAC middleware for use in RouteRegistrar.
// It wraps the server's role gate so extension routes use the same auth
// chain without depending on internal/server directly.
type AuthHelper interface {
	RequireRole(role Role) func(http.Handler) http.Handler
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including
// /health. Multiple middlewares are applied in registration order
// (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
