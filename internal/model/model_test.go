package model

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaseID(t *testing.T) {
	pattern := regexp.MustCompile(`^CASE-\d{4}-\d{2}-\d{2}-[0-9a-f]{8}$`)

	id := NewCaseID(CasePrefixPrecedent)
	assert.Regexp(t, pattern, id)

	// Unique across calls.
	assert.NotEqual(t, id, NewCaseID(CasePrefixPrecedent))

	assert.True(t, strings.HasPrefix(NewCaseID(CasePrefixNull), "NULL-"))
	assert.True(t, strings.HasPrefix(NewCaseID(CasePrefixVoid), "CASE-VOID-"))
}

func TestMissionRequestValidate(t *testing.T) {
	require.NoError(t, MissionRequest{Mission: "add pagination"}.Validate())

	assert.Error(t, MissionRequest{}.Validate())

	oversized := MissionRequest{Mission: strings.Repeat("x", MaxMissionLen+1)}
	assert.Error(t, oversized.Validate())

	atLimit := MissionRequest{Mission: strings.Repeat("x", MaxMissionLen)}
	assert.NoError(t, atLimit.Validate())
}

func TestAppealRequestValidate(t *testing.T) {
	valid := AppealRequest{CaseID: "CASE-2026-01-01-deadbeef", AppellantReason: "new context"}
	require.NoError(t, valid.Validate())

	assert.Error(t, AppealRequest{AppellantReason: "reason"}.Validate())
	assert.Error(t, AppealRequest{CaseID: "CASE-x"}.Validate())
}

func TestSenateRecordHelpers(t *testing.T) {
	t.Run("empty record", func(t *testing.T) {
		var r SenateRecord
		assert.Nil(t, r.FinalVote())
		assert.Empty(t, r.NullingAgents())
		assert.Empty(t, r.VetoReasons())
	})

	r := SenateRecord{Votes: []Vote{
		{Agent: AgentPreChecker, Verdict: VerdictAuthorize, Reasoning: "benign"},
		{Agent: AgentAdversary, Verdict: VerdictVeto, Reasoning: "injection risk"},
		{Agent: AgentFinalJudge, Verdict: VerdictVeto, Reasoning: "unacknowledged findings"},
	}}

	final := r.FinalVote()
	require.NotNil(t, final)
	assert.Equal(t, AgentFinalJudge, final.Agent)

	assert.Equal(t, []AgentName{AgentAdversary, AgentFinalJudge}, r.NullingAgents())
	assert.Equal(t, []string{"injection risk", "unacknowledged findings"}, r.VetoReasons())
}
