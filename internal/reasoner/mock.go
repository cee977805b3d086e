package reasoner

import (
	"context"
	"strings"
	"sync/atomic"
)

// forbiddenKeywords trigger a deterministic refusal in mock mode.
var forbiddenKeywords = []string{
	"surveillance", "hack", "destroy", "delete", "kill", "rm -rf",
}

// Mock is the deterministic Reasoner used when no endpoint is configured.
// It refuses prompts containing forbidden keywords, produces a minimal
// artifact for forge prompts, and authorizes everything else. Calls counts
// every Think invocation so tests can assert that a code path made zero
// Reasoner calls.
type Mock struct {
	calls atomic.Int64
}

// NewMock creates a deterministic mock Reasoner.
func NewMock() *Mock {
	return &Mock{}
}

// Calls returns the number of Think invocations so far.
func (m *Mock) Calls() int64 {
	return m.calls.Load()
}

// Think returns a canned response keyed on role and prompt content.
// Only the user prompt is scanned for forbidden keywords: the stage
// system prompts name the very behaviors they block, and matching on
// them would refuse every mission.
func (m *Mock) Think(ctx context.Context, role Role, systemPrompt, userPrompt string, opts Options) (map[string]any, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := strings.ToLower(userPrompt)
	for _, kw := range forbiddenKeywords {
		if strings.Contains(prompt, kw) {
			return map[string]any{
				"vote":   "NULL",
				"reason": "MOCK_REFUSAL_DUE_TO_KEYWORD",
			}, nil
		}
	}

	if role == RoleForge || role == RoleForgeBackstop {
		return map[string]any{
			"code":                        "def solution():\n    # Mock implementation generated offline.\n    return compute_result()\n\n\ndef compute_result():\n    return 42\n",
			"explanation":                 "Mock forge output: deterministic placeholder implementation.",
			"intermediate_representation": map[string]any{"steps": []any{"parse", "plan", "emit"}},
		}, nil
	}

	return map[string]any{
		"vote":   "AUTHORIZE",
		"reason": "MOCK_AUTHORIZATION_SAFE",
	}, nil
}
