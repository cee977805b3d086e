package reasoner

// ModelRegistry maps roles to model names. Per-role env overrides
// (PRECHECK_MODEL, FORGE_MODEL, FORGE_BACKSTOP_MODEL, ADVERSARY_MODEL,
// FINAL_MODEL) are resolved by config and passed in here.
type ModelRegistry struct {
	PreCheck      string
	Forge         string
	ForgeBackstop string
	Adversary     string
	Final         string
}

// DefaultRegistry returns the built-in role-to-model map used when no
// overrides are configured.
func DefaultRegistry() ModelRegistry {
	return ModelRegistry{
		PreCheck:      "sovereign-guard",
		Forge:         "cloud-forge-large",
		ForgeBackstop: "cloud-forge-aligned",
		Adversary:     "cloud-adversary",
		Final:         "cloud-judge",
	}
}

// ModelFor resolves the model name for a role, honoring governance-mode
// rerouting of the forge role to the backstop model.
func (r ModelRegistry) ModelFor(role Role, governanceMode bool) string {
	switch role {
	case RolePreCheck:
		return r.PreCheck
	case RoleForge:
		if governanceMode {
			return r.ForgeBackstop
		}
		return r.Forge
	case RoleForgeBackstop:
		return r.ForgeBackstop
	case RoleAdversary:
		return r.Adversary
	case RoleFinal:
		return r.Final
	default:
		return r.Final
	}
}

// sovereign reports whether a role is pinned to the local endpoint.
// The pre-checker never leaves the premises when a sovereign endpoint is
// configured; every other role defaults to the cloud endpoint.
func sovereign(role Role) bool {
	return role == RolePreCheck
}
