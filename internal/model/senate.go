// Package model defines the core domain types shared across the gateway:
// missions, votes, deliberation records, chronicle entries, and API envelopes.
package model

import "time"

// SenateState is the terminal (or in-flight) state of one deliberation run.
type SenateState string

const (
	StatePending        SenateState = "PENDING"
	StateAuthorized     SenateState = "AUTHORIZED"
	StateNullVerdict    SenateState = "NULL_VERDICT"
	StateHydraOverride  SenateState = "HYDRA_OVERRIDE"
	StateUngoverned     SenateState = "UNGOVERNED"
	StateAwaitingAppeal SenateState = "AWAITING_APPEAL"
)

// AgentName identifies which stage issued a vote.
type AgentName string

const (
	AgentPreChecker AgentName = "pre_checker"
	AgentForger     AgentName = "forger"
	AgentAdversary  AgentName = "adversary"
	AgentFinalJudge AgentName = "final_judge"
)

// Verdict is a single agent's ruling at one stage.
type Verdict string

const (
	VerdictAuthorize Verdict = "AUTHORIZE"
	VerdictVeto      Verdict = "VETO"
	VerdictAbstain   Verdict = "ABSTAIN"
)

// Vote is one agent's ruling at one deliberation stage.
// FindingsCited is true only on a final-judge vote whose reasoning
// explicitly acknowledges the adversary's findings.
type Vote struct {
	Agent         AgentName `json:"agent"`
	Verdict       Verdict   `json:"verdict"`
	Reasoning     string    `json:"reasoning"`
	Confidence    float64   `json:"confidence"`
	FindingsCited bool      `json:"findings_cited"`
	CastAt        time.Time `json:"cast_at"`
}

// FindingSeverity classifies an adversary finding.
type FindingSeverity string

const (
	SeverityHigh     FindingSeverity = "HIGH"
	SeverityCritical FindingSeverity = "CRITICAL"
)

// HydraFinding is a security finding extracted from the adversary's report
// by pattern match. Findings are deduplicated by excerpt prefix.
type HydraFinding struct {
	Pattern  string          `json:"pattern"`
	Excerpt  string          `json:"excerpt"`
	Severity FindingSeverity `json:"severity"`
}

// SenateRecord is the output of one deliberation run. It is created when
// the Senate convenes, mutated only inside the Senate, and frozen on return.
type SenateRecord struct {
	State           SenateState    `json:"state"`
	Intent          string         `json:"intent"`
	Proposal        string         `json:"proposal,omitempty"`
	AdversaryReport string         `json:"adversary_report,omitempty"`
	Findings        []HydraFinding `json:"findings"`
	Votes           []Vote         `json:"votes"`
	Appealable      bool           `json:"appealable"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ConvenedAt      time.Time      `json:"convened_at"`
}

// FinalVote returns the last vote cast, or nil if no votes were cast.
func (r *SenateRecord) FinalVote() *Vote {
	if len(r.Votes) == 0 {
		return nil
	}
	return &r.Votes[len(r.Votes)-1]
}

// NullingAgents returns the agents that voted VETO, in vote order.
func (r *SenateRecord) NullingAgents() []AgentName {
	var agents []AgentName
	for _, v := range r.Votes {
		if v.Verdict == VerdictVeto {
			agents = append(agents, v.Agent)
		}
	}
	return agents
}

// VetoReasons returns the reasoning of every VETO vote, in vote order.
func (r *SenateRecord) VetoReasons() []string {
	var reasons []string
	for _, v := range r.Votes {
		if v.Verdict == VerdictVeto {
			reasons = append(reasons, v.Reasoning)
		}
	}
	return reasons
}
