// Package senate implements the deliberation state machine: a fixed linear
// pipeline of pre-check, forge, adversary, and final judgment, with a
// constitutional override that binds the final judge to the adversary's
// findings. The override is pure logic, not a prompt — no model output
// short of an explicit acknowledgment phrase can circumvent it.
package senate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/model"
	"github.com/RedBackRubbish/TheNest/internal/reasoner"
)

// governanceKeywords flag an intent as governance-sensitive; the forge is
// rerouted to the backstop model when any of them appears.
var governanceKeywords = []string{
	"refusal", "override", "constitution", "system prompt", "security",
	"auth", "permission", "ban", "delete", "destroy",
}

// adversarySkipThreshold is the proposal length at or below which the
// adversary stage is skipped.
const adversarySkipThreshold = 100

// Senate drives one deliberation per Convene call. The four stages are
// strictly serial; every Reasoner call observes the request context.
// A Senate is stateless across runs and safe for concurrent Convenes.
type Senate struct {
	reasoner reasoner.Reasoner
	logger   *slog.Logger
}

// New creates a Senate.
func New(r reasoner.Reasoner, logger *slog.Logger) *Senate {
	return &Senate{reasoner: r, logger: logger}
}

// ConveneRequest names the inputs of one deliberation run.
type ConveneRequest struct {
	MissionID       string
	Intent          string
	AllowUngoverned bool
	// Sink receives the stage events of this run, in stage order.
	Sink events.Emitter
}

// run bundles the per-deliberation state shared by the stage methods.
type run struct {
	s         *Senate
	sink      events.Emitter
	missionID string
	record    *model.SenateRecord
}

// Convene runs the full pipeline over one intent and returns the frozen
// record. The only error it returns is context cancellation; reasoning
// failures are converted to VETO votes (fail closed) and never propagate.
func (s *Senate) Convene(ctx context.Context, req ConveneRequest) (*model.SenateRecord, error) {
	sink := req.Sink
	if sink == nil {
		sink = events.Noop{}
	}

	r := &run{
		s:         s,
		sink:      sink,
		missionID: req.MissionID,
		record: &model.SenateRecord{
			State:      model.StatePending,
			Intent:     req.Intent,
			Findings:   []model.HydraFinding{},
			Votes:      []model.Vote{},
			Metadata:   map[string]any{},
			ConvenedAt: time.Now().UTC(),
		},
	}

	// Martial law: no deliberation, no Reasoner calls.
	if req.AllowUngoverned {
		r.record.State = model.StateUngoverned
		r.record.Metadata["martial_law"] = "Article 50: Martial Governance — Senate bypassed"
		return r.record, nil
	}

	// Stage 1: pre-check.
	veto, err := r.preCheck(ctx)
	if err != nil {
		return nil, err
	}
	if veto {
		r.record.State = model.StateNullVerdict
		r.record.Appealable = true
		return r.record, nil
	}

	governanceMode := classifyGovernance(req.Intent)
	r.record.Metadata["governance_mode"] = governanceMode

	// Stage 2: forge.
	if err := r.forge(ctx, governanceMode); err != nil {
		return nil, err
	}

	// Stage 3: adversary.
	if err := r.adversary(ctx); err != nil {
		return nil, err
	}
	r.record.Findings = extractFindings(r.record.AdversaryReport)

	// Stage 4: final judgment, then the binding rule.
	if err := r.finalJudgment(ctx); err != nil {
		return nil, err
	}
	overrode := r.enforceBindingRule()

	switch {
	case overrode:
		r.record.State = model.StateHydraOverride
		r.record.Appealable = true
	case r.record.FinalVote().Verdict == model.VerdictAuthorize:
		r.record.State = model.StateAuthorized
	default:
		r.record.State = model.StateNullVerdict
		r.record.Appealable = true
	}
	return r.record, nil
}

// preCheck runs stage 1 and reports whether the pipeline must terminate.
func (r *run) preCheck(ctx context.Context) (bool, error) {
	r.emit(model.EventOnyxPrecheckStart, map[string]any{"intent": truncate(r.record.Intent, 256)})

	result, err := r.s.reasoner.Think(ctx, reasoner.RolePreCheck, preCheckSystemPrompt,
		"MISSION TO AUDIT:\n"+r.record.Intent, reasoner.Options{})
	if err != nil {
		return false, err
	}

	vote := parseJudgmentVote(model.AgentPreChecker, result)
	r.record.Votes = append(r.record.Votes, vote)

	if vote.Verdict == model.VerdictVeto {
		r.emit(model.EventOnyxPrecheckVeto, voteSnapshot(vote))
		r.s.logger.Info("senate: pre-check veto", "mission_id", r.missionID, "reason", vote.Reasoning)
		return true, nil
	}
	r.emit(model.EventOnyxPrecheckComplete, voteSnapshot(vote))
	return false, nil
}

// forge runs stage 2 and stores the proposal. No vote is recorded.
func (r *run) forge(ctx context.Context, governanceMode bool) error {
	r.emit(model.EventIgnisForgeStart, map[string]any{"governance_mode": governanceMode})

	systemPrompt := forgeSystemPrompt
	if governanceMode {
		systemPrompt += forgeGovernanceSuffix
	}

	result, err := r.s.reasoner.Think(ctx, reasoner.RoleForge, systemPrompt,
		"MISSION:\n"+r.record.Intent, reasoner.Options{GovernanceMode: governanceMode})
	if err != nil {
		return err
	}

	// A forge failure flows on as a stub proposal; the adversary and the
	// final judge will refuse it downstream.
	r.record.Proposal = extractProposal(result)

	r.emit(model.EventIgnisForgeComplete, map[string]any{
		"proposal_length": len(r.record.Proposal),
		"preview":         truncate(r.record.Proposal, 256),
	})
	return nil
}

// adversary runs stage 3 unless the proposal is too small to attack.
func (r *run) adversary(ctx context.Context) error {
	if len(r.record.Proposal) <= adversarySkipThreshold {
		r.record.AdversaryReport = "Skipped (proposal too small)"
		r.emit(model.EventHydraSkipped, map[string]any{"proposal_length": len(r.record.Proposal)})
		return nil
	}

	r.emit(model.EventHydraStart, nil)

	result, err := r.s.reasoner.Think(ctx, reasoner.RoleAdversary, adversarySystemPrompt,
		"PROPOSAL UNDER ATTACK:\n"+r.record.Proposal, reasoner.Options{})
	if err != nil {
		return err
	}

	if status, _ := result["status"].(string); status == reasoner.StatusFailed {
		// Adversary unavailable: no findings, so no override can fire.
		r.record.AdversaryReport = "No critical findings (adversary unavailable)"
	} else {
		serialized, merr := json.Marshal(result)
		if merr != nil {
			serialized = []byte(fmt.Sprintf("%v", result))
		}
		r.record.AdversaryReport = string(serialized)
	}

	r.emit(model.EventHydraComplete, map[string]any{
		"findings_count": len(extractFindings(r.record.AdversaryReport)),
	})
	return nil
}

// finalJudgment runs stage 4. The context hands the judge the proposal,
// the raw adversary report, and — when findings exist — the explicit
// binding list it must acknowledge.
func (r *run) finalJudgment(ctx context.Context) error {
	r.emit(model.EventOnyxFinalStart, map[string]any{"findings_count": len(r.record.Findings)})

	var sb strings.Builder
	sb.WriteString("PROPOSAL:\n")
	sb.WriteString(r.record.Proposal)
	sb.WriteString("\n\nHYDRA REPORT:\n")
	sb.WriteString(r.record.AdversaryReport)
	if len(r.record.Findings) > 0 {
		sb.WriteString("\n\nBINDING FINDINGS REQUIRING ACKNOWLEDGMENT:\n")
		for _, f := range r.record.Findings {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", f.Severity, f.Pattern, f.Excerpt)
		}
	}

	result, err := r.s.reasoner.Think(ctx, reasoner.RoleFinal, finalJudgeSystemPrompt, sb.String(), reasoner.Options{})
	if err != nil {
		return err
	}

	vote := parseJudgmentVote(model.AgentFinalJudge, result)
	r.record.Votes = append(r.record.Votes, vote)
	r.emit(model.EventOnyxFinalComplete, voteSnapshot(vote))
	return nil
}

// enforceBindingRule applies the constitutional override after the final
// vote is parsed. Returns true when the override fired.
func (r *run) enforceBindingRule() bool {
	record := r.record
	if len(record.Findings) == 0 {
		return false
	}
	final := record.FinalVote()
	if final == nil || final.Agent != model.AgentFinalJudge || final.Verdict != model.VerdictAuthorize {
		return false
	}

	if acknowledgesFindings(final.Reasoning) {
		final.FindingsCited = true
		return false
	}

	patterns := make([]string, 0, len(record.Findings))
	for _, f := range record.Findings {
		patterns = append(patterns, f.Pattern)
	}

	override := model.Vote{
		Agent:   model.AgentFinalJudge,
		Verdict: model.VerdictVeto,
		Reasoning: fmt.Sprintf(
			"HYDRA BINDING OVERRIDE: Onyx attempted to AUTHORIZE without acknowledging %d security finding(s). Patterns: [%s]. Original reasoning: %s",
			len(record.Findings), strings.Join(patterns, "; "), truncate(final.Reasoning, 200)),
		Confidence:    1.0,
		FindingsCited: false,
		CastAt:        time.Now().UTC(),
	}
	record.Votes = append(record.Votes, override)
	record.Metadata["hydra_override"] = map[string]any{
		"unacknowledged_findings": len(record.Findings),
		"patterns":                patterns,
	}

	r.emit(model.EventHydraOverrideTriggered, map[string]any{
		"unacknowledged_findings": len(record.Findings),
	})
	r.s.logger.Warn("senate: hydra binding override",
		"mission_id", r.missionID, "findings", len(record.Findings))
	return true
}

func (r *run) emit(t model.EventType, payload map[string]any) {
	r.sink.Emit(events.New(t, r.missionID, payload))
}

// classifyGovernance scans the intent for governance-sensitive keywords.
func classifyGovernance(intent string) bool {
	lower := strings.ToLower(intent)
	for _, kw := range governanceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// parseJudgmentVote maps a Reasoner result to a Vote. Any error object or
// unrecognized verdict maps to VETO (fail closed). Both affirmative
// spellings (ALLOW at pre-check, AUTHORIZE at final) are accepted; models
// drift between them.
func parseJudgmentVote(agent model.AgentName, result map[string]any) model.Vote {
	vote := model.Vote{
		Agent:      agent,
		Verdict:    model.VerdictVeto,
		Confidence: 1.0,
		CastAt:     time.Now().UTC(),
	}

	if status, _ := result["status"].(string); status == reasoner.StatusFailed {
		errMsg, _ := result["error"].(string)
		vote.Reasoning = "System Error during Audit: " + errMsg
		return vote
	}
	if status, _ := result["status"].(string); status == reasoner.StatusUnknownFormat {
		raw, _ := result["raw_output"].(string)
		vote.Reasoning = "System Error during Audit: unparsable verdict: " + truncate(raw, 120)
		return vote
	}

	verdict := strings.ToUpper(strings.TrimSpace(firstString(result, "verdict", "vote")))
	if c, ok := result["confidence"].(float64); ok && c >= 0 && c <= 1 {
		vote.Confidence = c
	} else {
		vote.Confidence = 0.8
	}

	switch verdict {
	case "ALLOW", "AUTHORIZE":
		vote.Verdict = model.VerdictAuthorize
	default:
		vote.Verdict = model.VerdictVeto
	}
	vote.Reasoning = firstString(result, "reason", "reasoning")
	return vote
}

// extractProposal pulls the forged artifact out of a Reasoner result:
// prefer the code field, else serialize the whole object.
func extractProposal(result map[string]any) string {
	if code, ok := result["code"].(string); ok && code != "" {
		return code
	}
	serialized, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(serialized)
}

func voteSnapshot(v model.Vote) map[string]any {
	return map[string]any{
		"agent":          v.Agent,
		"verdict":        v.Verdict,
		"reasoning":      truncate(v.Reasoning, 256),
		"confidence":     v.Confidence,
		"findings_cited": v.FindingsCited,
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
