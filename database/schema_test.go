package database

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaRejectsInvalidDimension(t *testing.T) {
	assert.Error(t, EnsureSchema(context.Background(), nil, 0))
}

func TestEnsureSchemaRequiresPool(t *testing.T) {
	assert.Error(t, EnsureSchema(context.Background(), nil, 768))
}

func TestSchemaStatementsUseDimension(t *testing.T) {
	stmts := schemaStatements(384)

	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, "VECTOR(384)")
	assert.Contains(t, joined, "PRIMARY KEY (namespace, id)")
	assert.Contains(t, joined, "ON DELETE CASCADE")
}

func TestEnsureSchemaIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool, 768))
	require.NoError(t, EnsureSchema(ctx, pool, 768))
}
