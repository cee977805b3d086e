// Package elder implements the orchestrator: the sole entry point for
// missions and appeals, the sole holder of a Chronicle writer handle, and
// the enforcer of fail-closed persistence. Every terminal outcome other
// than shadow runs is durably logged before the caller sees it.
package elder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/RedBackRubbish/TheNest/internal/chronicle"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/model"
	"github.com/RedBackRubbish/TheNest/internal/senate"
	"github.com/RedBackRubbish/TheNest/internal/telemetry"
)

// Elder orchestrates deliberation and persistence. Construct exactly one
// per process; it obtains the only writer handle at construction.
type Elder struct {
	senate    *senate.Senate
	chronicle *chronicle.Chronicle
	writer    chronicle.Handle
	emitter   events.Emitter
	logger    *slog.Logger

	missionCount        metric.Int64Counter
	deliberationSeconds metric.Float64Histogram
}

// New creates the Elder and claims the writer handle. Any other identity
// asking for one gets an access violation, so this is the only code path
// that can write case law.
func New(s *senate.Senate, c *chronicle.Chronicle, emitter events.Emitter, logger *slog.Logger) (*Elder, error) {
	writer, err := c.GetWriterHandle("ELDER")
	if err != nil {
		return nil, fmt.Errorf("elder: claim writer handle: %w", err)
	}
	if emitter == nil {
		emitter = events.Noop{}
	}

	meter := telemetry.Meter("thenest/elder")
	missions, _ := meter.Int64Counter("thenest.missions",
		metric.WithDescription("Missions by terminal status"),
	)
	delib, _ := meter.Float64Histogram("thenest.deliberation.duration",
		metric.WithDescription("Full Senate deliberation time (s)"),
		metric.WithUnit("s"),
	)

	return &Elder{
		senate:              s,
		chronicle:           c,
		writer:              writer,
		emitter:             emitter,
		logger:              logger,
		missionCount:        missions,
		deliberationSeconds: delib,
	}, nil
}

// RunOptions tune one mission run.
type RunOptions struct {
	// Sink additionally receives this run's events, in stage order.
	Sink events.Emitter
	// ShadowMode disables persistence but not event emission. Used by
	// predictive pre-builders outside the core.
	ShadowMode bool
	// AllowUngoverned short-circuits the Senate: no deliberation, no
	// Reasoner calls, a watermarked artifact. Keeper liability.
	AllowUngoverned bool
}

// RunMission drives one mission through the Senate and persists the
// outcome before returning. A persistence failure propagates; the caller
// never observes a successful refusal that was not logged.
func (e *Elder) RunMission(ctx context.Context, mission string, opts RunOptions) (*model.MissionOutcome, error) {
	missionID := uuid.New().String()
	sink := e.sinkFor(opts.Sink)

	sink.Emit(events.New(model.EventSenateConvening, missionID, map[string]any{"mission": mission}))
	e.logger.Info("elder: senate convening", "mission_id", missionID)

	started := time.Now()
	record, err := e.senate.Convene(ctx, senate.ConveneRequest{
		MissionID:       missionID,
		Intent:          mission,
		AllowUngoverned: opts.AllowUngoverned,
		Sink:            sink,
	})
	if err != nil {
		return nil, fmt.Errorf("elder: convene: %w", err)
	}
	e.deliberationSeconds.Record(ctx, time.Since(started).Seconds())

	outcome := e.deriveOutcome(mission, record)
	e.missionCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", outcome.Status)))

	// An ungoverned run is never persisted here; Article 50 invocations go
	// through InvokeArticle50, which logs the void case itself.
	if record.State == model.StateUngoverned {
		return outcome, nil
	}

	if record.State == model.StateAuthorized {
		if !opts.ShadowMode {
			caseID, err := e.persistApproval(ctx, mission, record)
			if err != nil {
				return nil, err
			}
			outcome.CaseID = caseID
		}
		sink.Emit(events.New(model.EventMissionApproved, missionID, map[string]any{
			"status":  outcome.Status,
			"case_id": outcome.CaseID,
		}))
		return outcome, nil
	}

	if !opts.ShadowMode {
		caseID, err := e.persistRefusal(ctx, mission, record, outcome)
		if err != nil {
			// Fail closed: no MISSION_REFUSED event for an unlogged refusal.
			return nil, err
		}
		outcome.CaseID = caseID
	}
	sink.Emit(events.New(model.EventMissionRefused, missionID, map[string]any{
		"status":  outcome.Status,
		"case_id": outcome.CaseID,
		"verdict": outcome.Verdict,
	}))
	return outcome, nil
}

// ProcessAppeal re-runs a decided case under expanded context. The
// original record is cited and referenced, never mutated; its appeal
// history gains exactly one entry.
func (e *Elder) ProcessAppeal(ctx context.Context, req model.AppealRequest) (*model.AppealOutcome, error) {
	original, err := e.chronicle.GetCaseByID(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	priorCount, err := e.chronicle.GetAppealCount(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	depth := priorCount + 1
	multiplier := math.Pow(1.5, float64(depth))

	citation, err := e.chronicle.CitePrecedent(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	expanded := buildExpandedMission(original, req)

	missionID := uuid.New().String()
	e.logger.Info("elder: appeal convening",
		"mission_id", missionID, "case_id", req.CaseID, "depth", depth)

	// The appeal goes through the full pipeline: the pre-checker and the
	// binding rule cannot be bypassed by appealing.
	record, err := e.senate.Convene(ctx, senate.ConveneRequest{
		MissionID: missionID,
		Intent:    expanded,
		Sink:      e.emitter,
	})
	if err != nil {
		return nil, fmt.Errorf("elder: appeal convene: %w", err)
	}

	newRuling := rulingFor(record)
	status := classifyAppeal(original.Verdict.Ruling, newRuling)

	appeal := model.AppealRecord{
		AppealID:             model.NewCaseID(model.CasePrefixAppeal),
		OriginalCaseID:       original.CaseID,
		OriginalRuling:       original.Verdict.Ruling,
		OriginalDeliberation: append([]model.Vote{}, original.Deliberation...),
		ExpandedContext:      req.ExpandedContext,
		ConstraintChanges:    req.ConstraintChanges,
		AppellantReason:      req.AppellantReason,
		NewDeliberation:      record.Votes,
		NewRuling:            newRuling,
		ChronicleCitations:   []string{citation.CitationID},
		Timestamp:            time.Now().UTC(),
		AppealDepth:          depth,
		LiabilityMultiplier:  multiplier,
		Status:               status,
	}

	appealID, err := e.chronicle.PersistAppeal(ctx, appeal, e.writer)
	if err != nil {
		return nil, err
	}

	e.logger.Info("elder: appeal decided",
		"appeal_id", appealID, "case_id", req.CaseID, "status", status, "new_ruling", newRuling)

	return &model.AppealOutcome{
		AppealID:            appealID,
		OriginalCaseID:      original.CaseID,
		OriginalRuling:      original.Verdict.Ruling,
		NewRuling:           newRuling,
		Status:              status,
		AppealDepth:         depth,
		LiabilityMultiplier: multiplier,
		ChronicleCitations:  appeal.ChronicleCitations,
	}, nil
}

// InvokeArticle50 is the martial-law escape hatch: no deliberation, no
// Reasoner calls. The artifact is watermarked with KEEPER liability and
// the void case is still logged — the Chronicle records even what the
// Senate never saw.
func (e *Elder) InvokeArticle50(ctx context.Context, mission string) (*model.MissionOutcome, error) {
	watermark := Watermark()

	caseID := model.NewCaseID(model.CasePrefixVoid)
	precedent := model.Precedent{
		CaseID:       caseID,
		Question:     mission,
		Deliberation: []model.Vote{},
		Verdict: model.CaseVerdict{
			Ruling:         model.RulingUngoverned,
			PrincipleCited: Article50,
			Watermark:      watermark,
		},
		AppealHistory: []string{},
		LoggedAt:      time.Now().UTC(),
	}
	if _, err := e.chronicle.WritePrecedent(ctx, precedent, e.writer); err != nil {
		return nil, err
	}

	e.logger.Warn("elder: article 50 invoked", "case_id", caseID)

	return &model.MissionOutcome{
		Status:  model.MissionStatusUngoverned,
		Mission: mission,
		CaseID:  caseID,
		Votes:   []model.Vote{},
		Artifact: &model.Artifact{
			Watermark: watermark,
		},
		Verdict: &model.VerdictView{Ruling: model.RulingUngoverned},
		Message: "Artifact produced outside constitutional protection. Liability rests with the KEEPER.",
	}, nil
}

// Chronicle returns the case-law store for read-side consumers (HTTP
// handlers, MCP tools). They receive reader capabilities only.
func (e *Elder) Chronicle() *chronicle.Chronicle {
	return e.chronicle
}

func (e *Elder) sinkFor(requestSink events.Emitter) events.Emitter {
	if requestSink == nil {
		return e.emitter
	}
	return events.Multi{e.emitter, requestSink}
}

// deriveOutcome builds the boundary view of a Senate record.
func (e *Elder) deriveOutcome(mission string, record *model.SenateRecord) *model.MissionOutcome {
	outcome := &model.MissionOutcome{
		Mission: mission,
		Votes:   record.Votes,
		Artifact: &model.Artifact{
			Code:        record.Proposal,
			HydraReport: record.AdversaryReport,
		},
		TestResults: map[string]any{"status": "SKIPPED", "detail": "test execution delegated to the build pipeline"},
	}

	switch record.State {
	case model.StateAuthorized:
		outcome.Status = model.MissionStatusApproved
		outcome.Verdict = &model.VerdictView{Ruling: model.RulingApproved}
	case model.StateNullVerdict, model.StateHydraOverride:
		outcome.Status = model.MissionStatusStopWorkOrder
		outcome.Verdict = &model.VerdictView{
			Ruling:         model.RulingNullVerdict,
			NullingAgents:  record.NullingAgents(),
			ReasonCodes:    reasonCodes(record),
			ContextSummary: strings.Join(record.VetoReasons(), "; "),
			FindingsCount:  len(record.Findings),
		}
		outcome.Message = "STOP WORK ORDER: the Senate refused this mission."
	case model.StateUngoverned:
		outcome.Status = model.MissionStatusUngoverned
		outcome.Artifact.Watermark = Watermark()
		outcome.Verdict = &model.VerdictView{Ruling: model.RulingUngoverned}
		outcome.Message = "Artifact produced outside constitutional protection. Liability rests with the KEEPER."
	default:
		outcome.Status = model.MissionStatusUnknownVerdict
	}
	return outcome
}

func (e *Elder) persistApproval(ctx context.Context, mission string, record *model.SenateRecord) (string, error) {
	precedent := model.Precedent{
		CaseID:        model.NewCaseID(model.CasePrefixPrecedent),
		Question:      mission,
		Deliberation:  record.Votes,
		Verdict:       model.CaseVerdict{Ruling: model.RulingApproved},
		AppealHistory: []string{},
		LoggedAt:      time.Now().UTC(),
	}
	return e.chronicle.WritePrecedent(ctx, precedent, e.writer)
}

func (e *Elder) persistRefusal(ctx context.Context, mission string, record *model.SenateRecord, outcome *model.MissionOutcome) (string, error) {
	rec := model.NullVerdictRecord{
		CaseID:         model.NewCaseID(model.CasePrefixNull),
		Mission:        mission,
		NullingAgents:  record.NullingAgents(),
		ReasonCodes:    reasonCodes(record),
		ContextSummary: strings.Join(record.VetoReasons(), "; "),
		Timestamp:      time.Now().UTC(),
		VerdictType:    model.RulingNullVerdict,
	}
	if outcome.Verdict != nil {
		rec.ContextSummary = outcome.Verdict.ContextSummary
	}
	return e.chronicle.PersistNullVerdict(ctx, rec, e.writer)
}

// rulingFor reduces a Senate record to the ruling string stored in case law.
func rulingFor(record *model.SenateRecord) string {
	if record.State == model.StateAuthorized {
		return model.RulingApproved
	}
	return model.RulingNullVerdict
}

// classifyAppeal compares rulings: UPHELD when unchanged, OVERTURNED when
// a refusal became an approval, MODIFIED otherwise.
func classifyAppeal(original, next string) model.AppealStatus {
	switch {
	case next == original:
		return model.AppealUpheld
	case next == model.RulingApproved && original != model.RulingApproved:
		return model.AppealOverturned
	default:
		return model.AppealModified
	}
}

// reasonCodes derives coarse reason codes from the veto votes.
func reasonCodes(record *model.SenateRecord) []string {
	var codes []string
	for _, v := range record.Votes {
		if v.Verdict != model.VerdictVeto {
			continue
		}
		switch {
		case strings.HasPrefix(v.Reasoning, "HYDRA BINDING OVERRIDE:"):
			codes = append(codes, "HYDRA_OVERRIDE")
		case v.Agent == model.AgentPreChecker:
			codes = append(codes, "PRECHECK_BLOCK")
		default:
			codes = append(codes, "FINAL_VETO")
		}
	}
	return codes
}

// buildExpandedMission concatenates the appeal context onto the original
// question. The original record itself is read, never written.
func buildExpandedMission(original model.Precedent, req model.AppealRequest) string {
	var sb strings.Builder
	sb.WriteString("APPEAL RE-EVALUATION\n\nORIGINAL QUESTION:\n")
	sb.WriteString(original.Question)

	sb.WriteString("\n\nORIGINAL DELIBERATION SUMMARY:\n")
	for _, v := range original.Deliberation {
		fmt.Fprintf(&sb, "- %s voted %s: %s\n", v.Agent, v.Verdict, v.Reasoning)
	}
	if len(original.Deliberation) == 0 {
		sb.WriteString("(no recorded votes)\n")
	}

	sb.WriteString("\nEXPANDED CONTEXT:\n")
	sb.WriteString(marshalOr(req.ExpandedContext, "{}"))
	sb.WriteString("\n\nCONSTRAINT CHANGES:\n")
	sb.WriteString(marshalOr(req.ConstraintChanges, "{}"))
	sb.WriteString("\n\nAPPELLANT REASON:\n")
	sb.WriteString(req.AppellantReason)
	sb.WriteString("\n\nRE-EVALUATION REQUIRED: reconsider the original question under the expanded context above.\nORIGINAL QUESTION RESTATED:\n")
	sb.WriteString(original.Question)
	return sb.String()
}

func marshalOr(v map[string]any, fallback string) string {
	if v == nil {
		return fallback
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}
