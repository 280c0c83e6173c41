package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceIsDeterministic(t *testing.T) {
	assert.Equal(t, "uploads/1712345-report.pdf", Namespace("uploads/1712345-report.pdf", true))
	assert.Equal(t, Namespace("uploads/a.pdf", false), Namespace("uploads/a.pdf", false))
}

func TestNamespaceStripsNonASCII(t *testing.T) {
	assert.Equal(t, "uploads/rsum.pdf", Namespace("uploads/résumé.pdf", false))
}

func TestNamespaceDisambiguatesStrippedKeys(t *testing.T) {
	a := Namespace("uploads/résumé.pdf", true)
	b := Namespace("uploads/rèsumè.pdf", true)

	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^uploads/rsum\.pdf-[0-9a-f]{12}$`, a)
	assert.Equal(t, a, Namespace("uploads/résumé.pdf", true))
}

func TestNamespaceAllNonASCII(t *testing.T) {
	assert.Equal(t, "", Namespace("日本語", false))
	assert.Regexp(t, `^[0-9a-f]{12}$`, Namespace("日本語", true))
}

func TestWriteErrorMessage(t *testing.T) {
	err := &WriteError{Namespace: "ns", Expected: 768, Dimension: 512}
	assert.Contains(t, err.Error(), "dimension 512")

	cause := errors.New("connection reset")
	err = &WriteError{Namespace: "ns", Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestDedupeKeepsLastEntry(t *testing.T) {
	out := Dedupe([]Entry{
		{ID: "a", Metadata: Metadata{Text: "first"}},
		{ID: "b"},
		{ID: "a", Metadata: Metadata{Text: "second"}},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "second", out[0].Metadata.Text)
	assert.Equal(t, "b", out[1].ID)
}

func TestMemoryIndexUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	entries := []Entry{
		{ID: "a", Values: []float32{1, 0}, Metadata: Metadata{Text: "alpha", PageNumber: 1}},
		{ID: "b", Values: []float32{0, 1}, Metadata: Metadata{Text: "beta", PageNumber: 2}},
	}
	require.NoError(t, idx.Upsert(ctx, "doc", entries))
	require.NoError(t, idx.Upsert(ctx, "doc", entries))

	n, err := idx.Count(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryIndexDimensionMismatchAbortsBatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	err := idx.Upsert(ctx, "doc", []Entry{
		{ID: "a", Values: []float32{1, 0}},
		{ID: "b", Values: []float32{1, 0, 0}},
	})

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, 3, writeErr.Dimension)
	assert.Equal(t, 2, writeErr.Expected)

	n, err := idx.Count(ctx, "doc")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryIndexAdoptsFirstDimension(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	require.NoError(t, idx.Upsert(ctx, "doc", []Entry{{ID: "a", Values: []float32{1, 0, 0}}}))
	err := idx.Upsert(ctx, "doc", []Entry{{ID: "b", Values: []float32{1, 0}}})

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
}

func TestMemoryIndexQueryOrdersByScore(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	require.NoError(t, idx.Upsert(ctx, "doc", []Entry{
		{ID: "far", Values: []float32{0, 1}, Metadata: Metadata{Text: "far"}},
		{ID: "near", Values: []float32{1, 0.1}, Metadata: Metadata{Text: "near", PageNumber: 3}},
		{ID: "mid", Values: []float32{1, 1}, Metadata: Metadata{Text: "mid"}},
	}))

	matches, err := idx.Query(ctx, "doc", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "near", matches[0].ID)
	assert.Equal(t, 3, matches[0].PageNumber)
	assert.Equal(t, "mid", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemoryIndexQueryIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	require.NoError(t, idx.Upsert(ctx, "one", []Entry{{ID: "a", Values: []float32{1, 0}}}))

	matches, err := idx.Query(ctx, "two", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryIndexQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Upsert(ctx, "doc", []Entry{{ID: "a", Values: []float32{1, 0}}}))

	_, err := idx.Query(ctx, "doc", []float32{1, 0, 0}, 5)

	var queryErr *QueryError
	assert.True(t, errors.As(err, &queryErr))
}

func TestMemoryIndexDeleteNamespace(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Upsert(ctx, "doc", []Entry{{ID: "a", Values: []float32{1, 0}}}))

	require.NoError(t, idx.DeleteNamespace(ctx, "doc"))

	n, err := idx.Count(ctx, "doc")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresIndexRequiresPool(t *testing.T) {
	idx := NewPostgresIndex(nil, 3)

	err := idx.Upsert(context.Background(), "doc", []Entry{{ID: "a", Values: []float32{1, 2, 3}}})
	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))

	_, err = idx.Query(context.Background(), "doc", []float32{1, 2, 3}, 5)
	var queryErr *QueryError
	assert.True(t, errors.As(err, &queryErr))
}

func TestPostgresIndexEmptyUpsertIsNoop(t *testing.T) {
	idx := NewPostgresIndex(nil, 3)
	assert.NoError(t, idx.Upsert(context.Background(), "doc", nil))
}
