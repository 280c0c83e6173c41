package vectorstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryanakml/pdf-chatbots/config"
	"github.com/Ryanakml/pdf-chatbots/database"
)

func newIntegrationIndex(t *testing.T) (*PostgresIndex, int) {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	dim := cfg.Embeddings.Dimension
	require.GreaterOrEqual(t, dim, 2)

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool, dim))

	return NewPostgresIndex(pool, dim), dim
}

func integrationNamespace(t *testing.T, idx *PostgresIndex) string {
	t.Helper()
	namespace := "it-" + uuid.NewString()
	t.Cleanup(func() {
		_ = idx.DeleteNamespace(context.Background(), namespace)
	})
	return namespace
}

// vec returns a vector of length dim with the given leading components.
func vec(dim int, head ...float32) []float32 {
	out := make([]float32, dim)
	copy(out, head)
	return out
}

func TestPostgresIndexUpsertOverwritesIntegration(t *testing.T) {
	idx, dim := newIntegrationIndex(t)
	ns := integrationNamespace(t, idx)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, ns, []Entry{
		{ID: "a", Values: vec(dim, 1), Metadata: Metadata{Text: "first", PageNumber: 1}},
		{ID: "b", Values: vec(dim, 0, 1), Metadata: Metadata{Text: "second", PageNumber: 2}},
	}))
	require.NoError(t, idx.Upsert(ctx, ns, []Entry{
		{ID: "a", Values: vec(dim, 1), Metadata: Metadata{Text: "first, revised", PageNumber: 3}},
	}))

	n, err := idx.Count(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	matches, err := idx.Query(ctx, ns, vec(dim, 1), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "first, revised", matches[0].Text)
	assert.Equal(t, 3, matches[0].PageNumber)
}

func TestPostgresIndexQueryOrdersByScoreIntegration(t *testing.T) {
	idx, dim := newIntegrationIndex(t)
	ns := integrationNamespace(t, idx)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, ns, []Entry{
		{ID: "far", Values: vec(dim, 0, 1), Metadata: Metadata{Text: "far"}},
		{ID: "exact", Values: vec(dim, 1), Metadata: Metadata{Text: "exact"}},
		{ID: "near", Values: vec(dim, 0.8, 0.6), Metadata: Metadata{Text: "near"}},
	}))

	matches, err := idx.Query(ctx, ns, vec(dim, 1), 5)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, []string{"exact", "near", "far"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.8, matches[1].Score, 1e-6)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestPostgresIndexNamespacesAreIsolatedIntegration(t *testing.T) {
	idx, dim := newIntegrationIndex(t)
	ns := integrationNamespace(t, idx)
	other := integrationNamespace(t, idx)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, ns, []Entry{{ID: "a", Values: vec(dim, 1), Metadata: Metadata{Text: "a"}}}))

	matches, err := idx.Query(ctx, other, vec(dim, 1), 5)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)

	require.NoError(t, idx.DeleteNamespace(ctx, ns))
	n, err := idx.Count(ctx, ns)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresIndexDimensionMismatchIntegration(t *testing.T) {
	idx, dim := newIntegrationIndex(t)
	ns := integrationNamespace(t, idx)
	ctx := context.Background()

	err := idx.Upsert(ctx, ns, []Entry{
		{ID: "ok", Values: vec(dim, 1)},
		{ID: "short", Values: []float32{1}},
	})
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, dim, writeErr.Expected)

	n, err := idx.Count(ctx, ns)
	require.NoError(t, err)
	assert.Zero(t, n)
}
