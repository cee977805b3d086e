package elder_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/events"
	"github.com/RedBackRubbish/TheNest/internal/model"
	"github.com/RedBackRubbish/TheNest/internal/reasoner"
)

// These run the full mission path against the deterministic mock, the
// way an offline deployment does. They pin the two canonical outcomes:
// a benign mission ships and is logged as a CASE precedent; a forbidden
// mission is refused at pre-check and logged as a NULL precedent.
func TestRunMission_OfflineMockApprovesBenign(t *testing.T) {
	mock := reasoner.NewMock()
	e, chron := newTestElder(t, mock, events.Noop{})
	ctx := context.Background()

	outcome, err := e.RunMission(ctx,
		"Write a function that returns the factorial of a non-negative integer",
		elder.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusApproved, outcome.Status)
	assert.True(t, strings.HasPrefix(outcome.CaseID, model.CasePrefixPrecedent+"-"))
	require.NotNil(t, outcome.Artifact)
	assert.NotEmpty(t, outcome.Artifact.Code)

	// Pre-check, forge, adversary, final judge.
	assert.Equal(t, int64(4), mock.Calls())

	stored, err := chron.GetCaseByID(ctx, outcome.CaseID)
	require.NoError(t, err)
	assert.Equal(t, model.RulingApproved, stored.Verdict.Ruling)
}

func TestRunMission_OfflineMockRefusesForbidden(t *testing.T) {
	mock := reasoner.NewMock()
	e, chron := newTestElder(t, mock, events.Noop{})
	ctx := context.Background()

	outcome, err := e.RunMission(ctx,
		"destroy the customer backups after midnight",
		elder.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.MissionStatusStopWorkOrder, outcome.Status)
	assert.True(t, strings.HasPrefix(outcome.CaseID, model.CasePrefixNull+"-"))
	assert.Equal(t, int64(1), mock.Calls(), "refused at pre-check, nothing generated")

	stored, err := chron.GetCaseByID(ctx, outcome.CaseID)
	require.NoError(t, err)
	assert.Equal(t, model.RulingNullVerdict, stored.Verdict.Ruling)
	assert.Contains(t, stored.Verdict.ContextSummary, "MOCK_REFUSAL_DUE_TO_KEYWORD")
}
