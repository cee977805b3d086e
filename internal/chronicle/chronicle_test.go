package chronicle_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedBackRubbish/TheNest/internal/chronicle"
	"github.com/RedBackRubbish/TheNest/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newBackends returns one store per backend under test (file and sqlite;
// postgres is covered by the testcontainers suite).
func newBackends(t *testing.T) map[string]chronicle.Store {
	t.Helper()

	fileStore, err := chronicle.NewFileStore(t.TempDir())
	require.NoError(t, err)

	sqliteStore, err := chronicle.NewSQLiteStore(filepath.Join(t.TempDir(), "chronicle.db"))
	require.NoError(t, err)

	return map[string]chronicle.Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func writerHandle(t *testing.T, c *chronicle.Chronicle) chronicle.Handle {
	t.Helper()
	h, err := c.GetWriterHandle("ELDER")
	require.NoError(t, err)
	return h
}

func samplePrecedent(caseID string) model.Precedent {
	return model.Precedent{
		CaseID:   caseID,
		Question: "implement cursor pagination for the orders endpoint",
		Deliberation: []model.Vote{
			{Agent: model.AgentPreChecker, Verdict: model.VerdictAuthorize, Reasoning: "benign"},
			{Agent: model.AgentFinalJudge, Verdict: model.VerdictAuthorize, Reasoning: "clean"},
		},
		Verdict: model.CaseVerdict{Ruling: model.RulingApproved},
	}
}

func TestHandleGating(t *testing.T) {
	t.Run("writer only for elder", func(t *testing.T) {
		h, err := chronicle.NewWriterHandle("ELDER")
		require.NoError(t, err)
		assert.True(t, h.CanWrite())
		assert.True(t, h.CanRead())

		// Case-insensitive identity.
		_, err = chronicle.NewWriterHandle("elder")
		assert.NoError(t, err)

		_, err = chronicle.NewWriterHandle("hydra")
		require.Error(t, err)
		assert.ErrorIs(t, err, chronicle.ErrAccess)
		assert.Contains(t, err.Error(), "CONSTITUTIONAL VIOLATION")
	})

	t.Run("reader for anyone", func(t *testing.T) {
		h := chronicle.NewReaderHandle("observer-7")
		assert.False(t, h.CanWrite())
		assert.True(t, h.CanRead())
	})

	t.Run("zero handle can do nothing", func(t *testing.T) {
		var h chronicle.Handle
		assert.False(t, h.CanWrite())
		assert.False(t, h.CanRead())
	})
}

func TestSecuredWriteRequiresWriterHandle(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := chronicle.New(store, true, testLogger())
			defer func() { _ = c.Close() }()

			reader := c.GetReaderHandle("adversary")
			_, err := c.WritePrecedent(context.Background(), samplePrecedent(""), reader)
			require.Error(t, err)
			assert.ErrorIs(t, err, chronicle.ErrAccess)

			// Same store accepts the write with the writer handle.
			writer := writerHandle(t, c)
			caseID, err := c.WritePrecedent(context.Background(), samplePrecedent(""), writer)
			require.NoError(t, err)
			assert.NotEmpty(t, caseID)
		})
	}
}

func TestUnsecuredModeSkipsGate(t *testing.T) {
	store, err := chronicle.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := chronicle.New(store, false, testLogger())
	defer func() { _ = c.Close() }()

	_, err = c.WritePrecedent(context.Background(), samplePrecedent(""), chronicle.Handle{})
	assert.NoError(t, err)
}

func TestWriteThenGetRoundTrip(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := chronicle.New(store, true, testLogger())
			defer func() { _ = c.Close() }()
			writer := writerHandle(t, c)
			ctx := context.Background()

			p := samplePrecedent("CASE-2026-01-01-roundtrip")
			caseID, err := c.WritePrecedent(ctx, p, writer)
			require.NoError(t, err)
			require.Equal(t, p.CaseID, caseID)

			got, err := c.GetCaseByID(ctx, caseID)
			require.NoError(t, err)
			assert.Equal(t, p.Question, got.Question)
			assert.Equal(t, p.Verdict.Ruling, got.Verdict.Ruling)
			assert.Len(t, got.Deliberation, 2)
			assert.NotZero(t, got.LoggedAt)
			assert.NotNil(t, got.AppealHistory)

			_, err = c.GetCaseByID(ctx, "CASE-absent")
			assert.ErrorIs(t, err, chronicle.ErrCaseNotFound)
		})
	}
}

func TestPersistNullVerdictStoredAsCaseLaw(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := chronicle.New(store, true, testLogger())
			defer func() { _ = c.Close() }()
			writer := writerHandle(t, c)
			ctx := context.Background()

			rec := model.NullVerdictRecord{
				Mission:        "disable the permission checks",
				NullingAgents:  []model.AgentName{model.AgentPreChecker},
				ReasonCodes:    []string{"PRECHECK_BLOCK"},
				ContextSummary: "governance-sensitive intent refused",
				VerdictType:    model.RulingNullVerdict,
			}
			caseID, err := c.PersistNullVerdict(ctx, rec, writer)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(caseID, model.CasePrefixNull+"-"))

			// Refusals are first-class case law: retrievable like any case.
			got, err := c.GetCaseByID(ctx, caseID)
			require.NoError(t, err)
			assert.Equal(t, model.RulingNullVerdict, got.Verdict.Ruling)
			assert.Equal(t, rec.Mission, got.Question)
			assert.Equal(t, []model.AgentName{model.AgentPreChecker}, got.Verdict.NullingAgents)
		})
	}
}

func TestAppealLinksWithoutMutatingOriginal(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := chronicle.New(store, true, testLogger())
			defer func() { _ = c.Close() }()
			writer := writerHandle(t, c)
			ctx := context.Background()

			caseID, err := c.WritePrecedent(ctx, samplePrecedent(""), writer)
			require.NoError(t, err)
			before, err := c.GetCaseByID(ctx, caseID)
			require.NoError(t, err)

			appeal := model.AppealRecord{
				OriginalCaseID:  caseID,
				OriginalRuling:  model.RulingApproved,
				AppellantReason: "new constraints apply",
				NewRuling:       model.RulingApproved,
				AppealDepth:     1,
				Status:          model.AppealUpheld,
			}
			appealID, err := c.PersistAppeal(ctx, appeal, writer)
			require.NoError(t, err)

			after, err := c.GetCaseByID(ctx, caseID)
			require.NoError(t, err)

			// Content fields untouched; appeal history gained exactly one id.
			assert.Equal(t, before.Question, after.Question)
			assert.Equal(t, before.Verdict, after.Verdict)
			assert.Equal(t, before.LoggedAt.Unix(), after.LoggedAt.Unix())
			require.Len(t, after.AppealHistory, 1)
			assert.Equal(t, appealID, after.AppealHistory[0])

			appeals, err := c.GetAppealsForCase(ctx, caseID)
			require.NoError(t, err)
			require.Len(t, appeals, 1)
			assert.Equal(t, appealID, appeals[0].AppealID)

			count, err := c.GetAppealCount(ctx, caseID)
			require.NoError(t, err)
			assert.Equal(t, len(after.AppealHistory), count)
		})
	}
}

func TestAppealAgainstAbsentCase(t *testing.T) {
	store, err := chronicle.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := chronicle.New(store, true, testLogger())
	defer func() { _ = c.Close() }()
	writer := writerHandle(t, c)

	_, err = c.PersistAppeal(context.Background(), model.AppealRecord{
		OriginalCaseID: "CASE-nope",
	}, writer)
	assert.ErrorIs(t, err, chronicle.ErrCaseNotFound)
}

func TestRetrievePrecedentKeywordOverlap(t *testing.T) {
	store, err := chronicle.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := chronicle.New(store, true, testLogger())
	defer func() { _ = c.Close() }()
	writer := writerHandle(t, c)
	ctx := context.Background()

	p1 := samplePrecedent("")
	p1.Question = "add rate limiting to the token endpoint"
	p2 := samplePrecedent("")
	p2.Question = "migrate the billing schema"
	_, err = c.WritePrecedent(ctx, p1, writer)
	require.NoError(t, err)
	_, err = c.WritePrecedent(ctx, p2, writer)
	require.NoError(t, err)

	matches, err := c.RetrievePrecedent(ctx, "Token refresh flow")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, p1.Question, matches[0].Question)

	// No shared tokens, no matches; empty query matches nothing.
	matches, err = c.RetrievePrecedent(ctx, "kubernetes operators")
	require.NoError(t, err)
	assert.Empty(t, matches)
	matches, err = c.RetrievePrecedent(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStatsAndAllPrecedents(t *testing.T) {
	store, err := chronicle.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := chronicle.New(store, true, testLogger())
	defer func() { _ = c.Close() }()
	writer := writerHandle(t, c)
	ctx := context.Background()

	for range 3 {
		_, err := c.WritePrecedent(ctx, samplePrecedent(""), writer)
		require.NoError(t, err)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Precedents)
	assert.Equal(t, 0, stats.Appeals)

	all, err := c.AllPrecedents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := chronicle.NewFileStore(dir)
	require.NoError(t, err)
	c := chronicle.New(store, true, testLogger())
	writer := writerHandle(t, c)
	caseID, err := c.WritePrecedent(ctx, samplePrecedent(""), writer)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := chronicle.NewFileStore(dir)
	require.NoError(t, err)
	c2 := chronicle.New(reopened, true, testLogger())
	defer func() { _ = c2.Close() }()

	got, err := c2.GetCaseByID(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, caseID, got.CaseID)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.db")
	ctx := context.Background()

	store, err := chronicle.NewSQLiteStore(path)
	require.NoError(t, err)
	c := chronicle.New(store, true, testLogger())
	writer := writerHandle(t, c)
	caseID, err := c.WritePrecedent(ctx, samplePrecedent(""), writer)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := chronicle.NewSQLiteStore(path)
	require.NoError(t, err)
	c2 := chronicle.New(reopened, true, testLogger())
	defer func() { _ = c2.Close() }()

	got, err := c2.GetCaseByID(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, caseID, got.CaseID)
}

// The append-only contract is structural: neither the Chronicle nor any
// Store implementation exposes an update or delete operation.
func TestNoDestructiveMethods(t *testing.T) {
	forbidden := []string{"update", "delete", "remove", "truncate", "purge", "drop"}

	types := []reflect.Type{
		reflect.TypeOf(&chronicle.Chronicle{}),
		reflect.TypeOf(&chronicle.FileStore{}),
		reflect.TypeOf(&chronicle.SQLiteStore{}),
		reflect.TypeOf(&chronicle.PostgresStore{}),
	}
	for _, typ := range types {
		for i := 0; i < typ.NumMethod(); i++ {
			name := strings.ToLower(typ.Method(i).Name)
			for _, bad := range forbidden {
				assert.NotContains(t, name, bad,
					"%s exposes a destructive-looking method %q", typ, typ.Method(i).Name)
			}
		}
	}
}
