package senate

import (
	"regexp"
	"strings"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// findingPatterns is the fixed rule set applied to the adversary's report.
// The set itself is the contract: the binding rule fires off these matches,
// so adding or removing a rule changes what the final judge is bound to.
// All matching is case-insensitive and whitespace-flexible.
var findingPatterns = compilePatterns([]string{
	`exploit demonstrated`,
	`vulnerability confirmed`,
	`attack vector identified`,
	`security flaw found`,
	`injection possible`,
	`authentication bypass`,
	`privilege escalation`,
	`remote code execution`,
	`sql injection`,
	`xss vulnerability`,
	`path traversal`,
	`buffer overflow`,
	`race condition exploitable`,
	`critical:`,
	`high severity`,
	`cvss[\s:]*[789]`,
})

// criticalMarkers upgrade a finding's severity from HIGH to CRITICAL when
// the matched rule contains one of them.
var criticalMarkers = []string{"exploit", "injection", "bypass", "execution"}

// acknowledgmentPatterns detect an explicit risk acknowledgment in the
// final judge's reasoning. Only a phrase matching one of these lets an
// AUTHORIZE stand in the presence of findings.
var acknowledgmentPatterns = compilePatterns([]string{
	`accept(ing|ed)?\s+(the\s+)?risk`,
	`acknowledge(d|s)?\s+(the\s+)?(security\s+)?risk`,
	`risk accepted`,
	`aware of\s+(the\s+)?vulnerability`,
	`despite\s+(the\s+)?(security\s+)?(risk|concern|finding)`,
	`hydra finding[s]?\s+(noted|acknowledged|accepted)`,
	`proceeding with\s+(known\s+)?risk`,
	`mitigat(ed|ion)\s+(in place|applied|sufficient)`,
})

type compiledPattern struct {
	id string
	re *regexp.Regexp
}

func compilePatterns(raw []string) []compiledPattern {
	out := make([]compiledPattern, 0, len(raw))
	for _, p := range raw {
		// Literal spaces in a rule tolerate any whitespace run.
		flexible := strings.ReplaceAll(p, " ", `\s+`)
		out = append(out, compiledPattern{
			id: p,
			re: regexp.MustCompile(`(?i)` + flexible),
		})
	}
	return out
}

// excerptRadius is how much surrounding text is captured with each match.
const excerptRadius = 50

// dedupePrefixLen is the excerpt prefix length used for deduplication.
const dedupePrefixLen = 50

// extractFindings applies the finding rule set to the adversary report and
// returns deduplicated findings in rule order.
func extractFindings(report string) []model.HydraFinding {
	var findings []model.HydraFinding
	seen := make(map[string]struct{})

	for _, p := range findingPatterns {
		for _, loc := range p.re.FindAllStringIndex(report, -1) {
			start := loc[0] - excerptRadius
			if start < 0 {
				start = 0
			}
			end := loc[1] + excerptRadius
			if end > len(report) {
				end = len(report)
			}
			excerpt := report[start:end]

			prefix := excerpt
			if len(prefix) > dedupePrefixLen {
				prefix = prefix[:dedupePrefixLen]
			}
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}

			findings = append(findings, model.HydraFinding{
				Pattern:  p.id,
				Excerpt:  excerpt,
				Severity: findingSeverity(p.id),
			})
		}
	}
	return findings
}

func findingSeverity(pattern string) model.FindingSeverity {
	for _, marker := range criticalMarkers {
		if strings.Contains(pattern, marker) {
			return model.SeverityCritical
		}
	}
	return model.SeverityHigh
}

// acknowledgesFindings reports whether the reasoning contains an explicit
// risk acknowledgment phrase.
func acknowledgesFindings(reasoning string) bool {
	for _, p := range acknowledgmentPatterns {
		if p.re.MatchString(reasoning) {
			return true
		}
	}
	return false
}
