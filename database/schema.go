package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the vector, chat and message tables. It fails when an
// existing pdf_vectors table was created with a different dimension.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	for _, stmt := range schemaStatements(dimension) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	existing, err := vectorDimension(ctx, pool)
	if err != nil {
		return err
	}
	if existing > 0 && existing != dimension {
		return fmt.Errorf("pdf_vectors.embedding has dimension %d, configured dimension is %d", existing, dimension)
	}

	return nil
}

func schemaStatements(dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pdf_vectors (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			text TEXT NOT NULL,
			page_number INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, id)
		)`, dimension),
		`CREATE TABLE IF NOT EXISTS chats (
			id UUID PRIMARY KEY,
			pdf_name TEXT NOT NULL,
			pdf_url TEXT NOT NULL,
			user_id VARCHAR(256) NOT NULL,
			file_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, created_at DESC)",
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at, id)",
	}
}

// vectorDimension reads the declared dimension of pdf_vectors.embedding; zero
// means the column type carries none.
func vectorDimension(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var typmod int
	err := pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'pdf_vectors'::regclass AND attname = 'embedding'
	`).Scan(&typmod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read vector dimension: %w", err)
	}
	if typmod < 0 {
		return 0, nil
	}
	return typmod, nil
}
