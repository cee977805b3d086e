// Package reasoner provides the role-tagged language-model capability the
// Senate deliberates with. A Reasoner takes a role, a system prompt, and a
// user prompt and returns a decoded JSON object. Routing maps each role to
// a configured endpoint; with no endpoint configured the package degrades
// to a deterministic mock.
package reasoner

import "context"

// Role tags a think request with the deliberation stage issuing it.
type Role string

const (
	RolePreCheck      Role = "pre_check"
	RoleForge         Role = "forge"
	RoleForgeBackstop Role = "forge_backstop"
	RoleAdversary     Role = "adversary"
	RoleFinal         Role = "final"
)

// Options tune a single think call.
type Options struct {
	// Temperature overrides the role default when non-nil.
	Temperature *float64
	// GovernanceMode reroutes the forge role to the backstop endpoint.
	GovernanceMode bool
	// ExplicitModel overrides routing entirely when non-empty.
	ExplicitModel string
}

// Reasoner is the capability exposed to the Senate. Think returns either a
// decoded JSON object or an error; it never surfaces parse failures of the
// underlying model output (those are wrapped as UNKNOWN_FORMAT objects).
type Reasoner interface {
	Think(ctx context.Context, role Role, systemPrompt, userPrompt string, opts Options) (map[string]any, error)
}

// Result status markers set on degraded responses.
const (
	StatusUnknownFormat = "UNKNOWN_FORMAT"
	StatusFailed        = "FAILED"
)

// roleTemperature returns the default sampling temperature for a role.
// Judgment roles run cold; generation runs warm.
func roleTemperature(role Role, governanceMode bool) float64 {
	switch {
	case role == RolePreCheck || role == RoleFinal:
		return 0.1
	case governanceMode:
		return 0.1
	default:
		return 0.7
	}
}
