package senate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

func TestExtractFindings_MatchesKnownPatterns(t *testing.T) {
	report := "Analysis complete. SQL injection possible on the search form. Also an authentication bypass was observed."

	findings := extractFindings(report)
	require.NotEmpty(t, findings)

	patterns := make([]string, 0, len(findings))
	for _, f := range findings {
		patterns = append(patterns, f.Pattern)
	}
	assert.Contains(t, patterns, "injection possible")
	assert.Contains(t, patterns, "authentication bypass")
}

func TestExtractFindings_CaseAndWhitespaceInsensitive(t *testing.T) {
	findings := extractFindings("EXPLOIT   demonstrated against the login handler")
	require.Len(t, findings, 1)
	assert.Equal(t, "exploit demonstrated", findings[0].Pattern)
}

func TestExtractFindings_Severity(t *testing.T) {
	critical := extractFindings("remote code execution achieved via deserialization")
	require.NotEmpty(t, critical)
	assert.Equal(t, model.SeverityCritical, critical[0].Severity)

	high := extractFindings("path traversal on the download route")
	require.NotEmpty(t, high)
	assert.Equal(t, model.SeverityHigh, high[0].Severity)
}

func TestExtractFindings_DeduplicatesByExcerptPrefix(t *testing.T) {
	// Two rules ("critical:" and "high severity") matching the same text
	// region collapse into one finding.
	report := "CRITICAL: high severity flaw in token validation"
	findings := extractFindings(report)
	assert.Len(t, findings, 1)
}

func TestExtractFindings_ExcerptWindow(t *testing.T) {
	pad := strings.Repeat("a", 200)
	report := pad + " buffer overflow " + pad
	findings := extractFindings(report)
	require.Len(t, findings, 1)
	// Excerpt is the match plus up to 50 chars each side.
	assert.LessOrEqual(t, len(findings[0].Excerpt), len("buffer overflow")+2+100)
	assert.Contains(t, findings[0].Excerpt, "buffer overflow")
}

func TestExtractFindings_CleanReport(t *testing.T) {
	assert.Empty(t, extractFindings("reviewed the proposal; no problems worth reporting"))
	assert.Empty(t, extractFindings(""))
}

func TestAcknowledgesFindings(t *testing.T) {
	acknowledged := []string{
		"Accepting the risk given the deployment constraints",
		"risk accepted after review",
		"we are aware of the vulnerability and proceeding",
		"authorizing despite the security finding",
		"hydra findings noted, mitigations to follow",
		"mitigation in place for the reported issue",
	}
	for _, s := range acknowledged {
		assert.True(t, acknowledgesFindings(s), "should acknowledge: %q", s)
	}

	unacknowledged := []string{
		"the code is clean and well tested",
		"great work, ship it",
		"",
	}
	for _, s := range unacknowledged {
		assert.False(t, acknowledgesFindings(s), "should not acknowledge: %q", s)
	}
}
