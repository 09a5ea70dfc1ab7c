package gateway

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eTEats_web/models"
)

// newPostgresStore connects to RECIPES_TEST_PG_DSN and installs an
// execute_sql procedure shaped like the hosted one.
func newPostgresStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := os.Getenv("RECIPES_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("RECIPES_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	_, err = store.DB().ExecContext(ctx, `
CREATE OR REPLACE FUNCTION execute_sql(sql_string text) RETURNS void
LANGUAGE plpgsql AS $$
BEGIN
	EXECUTE sql_string;
END
$$`)
	require.NoError(t, err)
	return store
}

func uniqueSlug(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func TestPostgresStore_ExecuteSQL(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)

	slug := uniqueSlug("rpc")
	stmt := fmt.Sprintf(`INSERT INTO recipes (id, slug, title, servings, prep_minutes, cook_minutes, is_public, created_at, updated_at)
VALUES ('%s', '%s', 'Remote Soup', 3, 0, 0, true, now(), now())`, uuid.NewString(), slug)
	require.NoError(t, store.ExecuteSQL(ctx, stmt))

	got, err := store.RecipeBySlug(ctx, slug)
	require.NoError(t, err)
	assert.Equal(t, "Remote Soup", got.Title)
	assert.Equal(t, 3, got.Servings)

	err = store.ExecuteSQL(ctx, "INSERT INTO no_such_table VALUES (1)")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "execute_sql", remoteErr.Op)
}

func TestPostgresStore_InsertRecipe_Conflicts(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)

	first := testRecipe(uniqueSlug("dup"), true, time.Now().UTC())
	require.NoError(t, store.InsertRecipe(ctx, first))

	sameSlug := testRecipe(first.Slug, true, time.Now().UTC())
	assert.ErrorIs(t, store.InsertRecipe(ctx, sameSlug), ErrSlugTaken)

	sameID := testRecipe(uniqueSlug("other"), true, time.Now().UTC())
	sameID.ID = first.ID
	err := store.InsertRecipe(ctx, sameID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlugTaken)
}

func TestPostgresStore_ReadsInOrder(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := testRecipe(uniqueSlug("older"), true, base)
	newer := testRecipe(uniqueSlug("newer"), true, base.Add(time.Minute))
	draft := testRecipe(uniqueSlug("draft"), false, base.Add(2*time.Minute))
	for _, r := range []*models.Recipe{older, newer, draft} {
		require.NoError(t, store.InsertRecipe(ctx, r))
	}

	recipes, err := store.ListPublicRecipes(ctx)
	require.NoError(t, err)
	// the database may hold rows from other runs
	var ours []string
	for _, r := range recipes {
		switch r.ID {
		case older.ID, newer.ID, draft.ID:
			ours = append(ours, r.ID)
		}
	}
	assert.Equal(t, []string{newer.ID, older.ID}, ours)

	require.NoError(t, store.InsertSteps(ctx, []models.Step{
		{ID: uuid.NewString(), RecipeID: older.ID, Position: 2, Text: "second", CreatedAt: base},
		{ID: uuid.NewString(), RecipeID: older.ID, Position: 1, Text: "first", CreatedAt: base},
	}))
	steps, err := store.Steps(ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "first", steps[0].Text)
}
