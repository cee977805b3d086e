package elder_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedBackRubbish/TheNest/internal/chronicle"
	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/model"
	"github.com/RedBackRubbish/TheNest/internal/reasoner"
	"github.com/RedBackRubbish/TheNest/internal/senate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// funcReasoner delegates Think to a swappable function, so a test can
// change verdicts between runs (e.g. refuse first, authorize on appeal).
type funcReasoner struct {
	mu sync.Mutex
	fn func(role reasoner.Role) map[string]any
}

func (f *funcReasoner) Think(ctx context.Context, role reasoner.Role, systemPrompt, userPrompt string, opts reasoner.Options) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn(role), nil
}

func (f *funcReasoner) set(fn func(role reasoner.Role) map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func authorizeAll(role reasoner.Role) map[string]any {
	if role == reasoner.RoleForge || role == reasoner.RoleForgeBackstop {
		return map[string]any{"code": strings.Repeat("def step():\n    return run()\n", 5)}
	}
	if role == reasoner.RoleAdversary {
		return map[string]any{"report": "no issues found"}
	}
	return map[string]any{"verdict": "AUTHORIZE", "reason": "clean"}
}

func vetoAtPreCheck(role reasoner.Role) map[string]any {
	if role == reasoner.RolePreCheck {
		return map[string]any{"verdict": "NULL", "reason": "governance-sensitive intent"}
	}
	return authorizeAll(role)
}

// eventRecorder captures emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) Emit(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestElder(t *testing.T, r reasoner.Reasoner, emitter events.Emitter) (*elder.Elder, *chronicle.Chronicle) {
	t.Helper()
	store, err := chronicle.NewFileStore(t.TempDir())
	require.NoError(t, err)
	chron := chronicle.New(store, true, testLogger())
	t.Cleanup(func() { _ = chron.Close() })

	sen := senate.New(r, testLogger())
	e, err := elder.New(sen, chron, emitter, testLogger())
	require.NoError(t, err)
	return e, chron
}

func TestRunMission_ApprovalPersistedBeforeReturn(t *testing.T) {
	rec := &eventRecorder{}
	e, chron := newTestElder(t, &funcReasoner{fn: authorizeAll}, rec)

	outcome, err := e.RunMission(context.Background(), "implement a csv export for reports", elder.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusApproved, outcome.Status)
	require.NotEmpty(t, outcome.CaseID)
	assert.NotEmpty(t, outcome.Artifact.Code)

	// The case is already durable by the time the caller sees the outcome.
	stored, err := chron.GetCaseByID(context.Background(), outcome.CaseID)
	require.NoError(t, err)
	assert.Equal(t, model.RulingApproved, stored.Verdict.Ruling)
	assert.NotEmpty(t, stored.Deliberation)

	types := rec.types()
	assert.Contains(t, types, model.EventSenateConvening)
	assert.Contains(t, types, model.EventMissionApproved)
}

func TestRunMission_RefusalStoredAsNullVerdict(t *testing.T) {
	rec := &eventRecorder{}
	e, chron := newTestElder(t, &funcReasoner{fn: vetoAtPreCheck}, rec)

	outcome, err := e.RunMission(context.Background(), "rewrite the refusal policy", elder.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusStopWorkOrder, outcome.Status)
	require.NotNil(t, outcome.Verdict)
	assert.Equal(t, model.RulingNullVerdict, outcome.Verdict.Ruling)
	assert.Equal(t, []model.AgentName{model.AgentPreChecker}, outcome.Verdict.NullingAgents)
	assert.Contains(t, outcome.Verdict.ReasonCodes, "PRECHECK_BLOCK")

	stored, err := chron.GetCaseByID(context.Background(), outcome.CaseID)
	require.NoError(t, err)
	assert.Equal(t, model.RulingNullVerdict, stored.Verdict.Ruling)

	assert.Contains(t, rec.types(), model.EventMissionRefused)
}

func TestRunMission_ShadowModeSkipsPersistence(t *testing.T) {
	rec := &eventRecorder{}
	e, chron := newTestElder(t, &funcReasoner{fn: authorizeAll}, rec)

	outcome, err := e.RunMission(context.Background(), "shadow probe", elder.RunOptions{ShadowMode: true})
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusApproved, outcome.Status)
	assert.Empty(t, outcome.CaseID)

	stats, err := chron.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Precedents)

	// Events still flow in shadow mode.
	assert.Contains(t, rec.types(), model.EventMissionApproved)
}

func TestRunMission_UngovernedNotPersisted(t *testing.T) {
	mock := reasoner.NewMock()
	e, chron := newTestElder(t, mock, events.Noop{})

	outcome, err := e.RunMission(context.Background(), "emergency patch", elder.RunOptions{AllowUngoverned: true})
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusUngoverned, outcome.Status)
	assert.Empty(t, outcome.CaseID)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, "UNGOVERNED", outcome.Artifact.Watermark["zone"])
	assert.Equal(t, int64(0), mock.Calls())

	stats, err := chron.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Precedents)
}

func TestRunMission_PersistenceFailureFailsClosed(t *testing.T) {
	rec := &eventRecorder{}
	store := &failingStore{}
	chron := chronicle.New(store, true, testLogger())
	sen := senate.New(&funcReasoner{fn: vetoAtPreCheck}, testLogger())
	e, err := elder.New(sen, chron, rec, testLogger())
	require.NoError(t, err)

	outcome, err := e.RunMission(context.Background(), "anything", elder.RunOptions{})
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, chronicle.ErrPersistence)

	// No refusal event for an unlogged refusal.
	assert.NotContains(t, rec.types(), model.EventMissionRefused)
}

func TestProcessAppeal_Overturned(t *testing.T) {
	r := &funcReasoner{fn: vetoAtPreCheck}
	e, _ := newTestElder(t, r, events.Noop{})
	ctx := context.Background()

	refused, err := e.RunMission(ctx, "expose the admin diagnostics page", elder.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, model.MissionStatusStopWorkOrder, refused.Status)

	// Expanded context changes the verdict on re-evaluation.
	r.set(authorizeAll)

	outcome, err := e.ProcessAppeal(ctx, model.AppealRequest{
		CaseID:          refused.CaseID,
		AppellantReason: "the page is only reachable from the internal network",
		ExpandedContext: map[string]any{"network": "internal only"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.AppealOverturned, outcome.Status)
	assert.Equal(t, model.RulingNullVerdict, outcome.OriginalRuling)
	assert.Equal(t, model.RulingApproved, outcome.NewRuling)
	assert.Equal(t, 1, outcome.AppealDepth)
	assert.InDelta(t, 1.5, outcome.LiabilityMultiplier, 1e-9)
	assert.NotEmpty(t, outcome.ChronicleCitations)
}

func TestProcessAppeal_UpheldAndEscalatingLiability(t *testing.T) {
	r := &funcReasoner{fn: vetoAtPreCheck}
	e, chron := newTestElder(t, r, events.Noop{})
	ctx := context.Background()

	refused, err := e.RunMission(ctx, "bypass review for the deploy job", elder.RunOptions{})
	require.NoError(t, err)

	first, err := e.ProcessAppeal(ctx, model.AppealRequest{
		CaseID:          refused.CaseID,
		AppellantReason: "reconsider",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppealUpheld, first.Status)
	assert.Equal(t, 1, first.AppealDepth)
	assert.InDelta(t, 1.5, first.LiabilityMultiplier, 1e-9)

	second, err := e.ProcessAppeal(ctx, model.AppealRequest{
		CaseID:          refused.CaseID,
		AppellantReason: "reconsider again",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.AppealDepth)
	assert.InDelta(t, 2.25, second.LiabilityMultiplier, 1e-9)

	// The original case now carries both appeal ids, in order.
	stored, err := chron.GetCaseByID(ctx, refused.CaseID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.AppealID, second.AppealID}, stored.AppealHistory)
}

func TestProcessAppeal_AbsentCase(t *testing.T) {
	e, _ := newTestElder(t, &funcReasoner{fn: authorizeAll}, events.Noop{})

	_, err := e.ProcessAppeal(context.Background(), model.AppealRequest{
		CaseID:          "CASE-missing",
		AppellantReason: "x",
	})
	assert.ErrorIs(t, err, chronicle.ErrCaseNotFound)
}

func TestInvokeArticle50(t *testing.T) {
	mock := reasoner.NewMock()
	e, chron := newTestElder(t, mock, events.Noop{})
	ctx := context.Background()

	outcome, err := e.InvokeArticle50(ctx, "hotfix the billing outage")
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusUngoverned, outcome.Status)
	assert.True(t, strings.HasPrefix(outcome.CaseID, model.CasePrefixVoid+"-"))
	assert.Empty(t, outcome.Votes)
	assert.Equal(t, int64(0), mock.Calls())

	require.NotNil(t, outcome.Artifact)
	wm := outcome.Artifact.Watermark
	assert.Equal(t, "UNGOVERNED", wm["zone"])
	assert.Equal(t, "KEEPER", wm["liability"])
	assert.Equal(t, false, wm["constitutional_protection"])

	// Even the void case is logged.
	stored, err := chron.GetCaseByID(ctx, outcome.CaseID)
	require.NoError(t, err)
	assert.Equal(t, model.RulingUngoverned, stored.Verdict.Ruling)
	assert.Equal(t, elder.Article50, stored.Verdict.PrincipleCited)
	assert.Empty(t, stored.Deliberation)
}

// failingStore satisfies chronicle.Store and fails every append.
type failingStore struct{}

var errDisk = errors.New("disk full")

func (failingStore) AppendPrecedent(ctx context.Context, p model.Precedent) error { return errDisk }
func (failingStore) AppendAppeal(ctx context.Context, a model.AppealRecord) error { return errDisk }
func (failingStore) ListPrecedents(ctx context.Context) ([]model.Precedent, error) {
	return nil, nil
}
func (failingStore) GetCase(ctx context.Context, caseID string) (model.Precedent, error) {
	return model.Precedent{}, chronicle.ErrCaseNotFound
}
func (failingStore) ListAppeals(ctx context.Context, caseID string) ([]model.AppealRecord, error) {
	return nil, nil
}
func (failingStore) Stats(ctx context.Context) (model.ChronicleStats, error) {
	return model.ChronicleStats{}, nil
}
func (failingStore) Close() error { return nil }
