package chronicle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedBackRubbish/TheNest/internal/chronicle"
	"github.com/RedBackRubbish/TheNest/internal/model"
	"github.com/RedBackRubbish/TheNest/internal/testutil"
)

// TestPostgresStore exercises the postgres backend against a real
// database. It needs Docker; -short skips it.
func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	ctx := context.Background()
	store, err := chronicle.NewPostgresStore(ctx, tc.DSN)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	t.Run("precedent round trip", func(t *testing.T) {
		p := samplePrecedent(model.NewCaseID(model.CasePrefixPrecedent))
		require.NoError(t, store.AppendPrecedent(ctx, p))

		got, err := store.GetCase(ctx, p.CaseID)
		require.NoError(t, err)
		assert.Equal(t, p.CaseID, got.CaseID)
		assert.Equal(t, p.Question, got.Question)
		assert.Equal(t, model.RulingApproved, got.Verdict.Ruling)
		assert.Len(t, got.Deliberation, 2)
		assert.Empty(t, got.AppealHistory)
	})

	t.Run("missing case", func(t *testing.T) {
		_, err := store.GetCase(ctx, "CASE-does-not-exist")
		assert.ErrorIs(t, err, chronicle.ErrCaseNotFound)
	})

	t.Run("appeal history is derived in filing order", func(t *testing.T) {
		p := samplePrecedent(model.NewCaseID(model.CasePrefixPrecedent))
		require.NoError(t, store.AppendPrecedent(ctx, p))

		first := model.AppealRecord{
			AppealID:       model.NewCaseID(model.CasePrefixAppeal),
			OriginalCaseID: p.CaseID,
			Status:         model.AppealUpheld,
		}
		second := model.AppealRecord{
			AppealID:       model.NewCaseID(model.CasePrefixAppeal),
			OriginalCaseID: p.CaseID,
			Status:         model.AppealOverturned,
		}
		require.NoError(t, store.AppendAppeal(ctx, first))
		require.NoError(t, store.AppendAppeal(ctx, second))

		got, err := store.GetCase(ctx, p.CaseID)
		require.NoError(t, err)
		assert.Equal(t, []string{first.AppealID, second.AppealID}, got.AppealHistory)

		appeals, err := store.ListAppeals(ctx, p.CaseID)
		require.NoError(t, err)
		require.Len(t, appeals, 2)
		assert.Equal(t, model.AppealUpheld, appeals[0].Status)
		assert.Equal(t, model.AppealOverturned, appeals[1].Status)
	})

	t.Run("appeal against unknown case is rejected by the schema", func(t *testing.T) {
		err := store.AppendAppeal(ctx, model.AppealRecord{
			AppealID:       model.NewCaseID(model.CasePrefixAppeal),
			OriginalCaseID: "CASE-phantom",
		})
		assert.Error(t, err, "foreign key should block orphan appeals")
	})

	t.Run("list preserves insertion order", func(t *testing.T) {
		before, err := store.ListPrecedents(ctx)
		require.NoError(t, err)

		p := samplePrecedent(model.NewCaseID(model.CasePrefixPrecedent))
		require.NoError(t, store.AppendPrecedent(ctx, p))

		after, err := store.ListPrecedents(ctx)
		require.NoError(t, err)
		require.Len(t, after, len(before)+1)
		assert.Equal(t, p.CaseID, after[len(after)-1].CaseID, "newest precedent lists last")
	})

	t.Run("stats count both tables", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.Precedents, 3)
		assert.GreaterOrEqual(t, stats.Appeals, 2)
	})

	t.Run("survives reconnect", func(t *testing.T) {
		p := samplePrecedent(model.NewCaseID(model.CasePrefixPrecedent))
		require.NoError(t, store.AppendPrecedent(ctx, p))

		second, err := chronicle.NewPostgresStore(ctx, tc.DSN)
		require.NoError(t, err)
		defer func() { _ = second.Close() }()

		got, err := second.GetCase(ctx, p.CaseID)
		require.NoError(t, err)
		assert.Equal(t, p.Question, got.Question)
	})
}
