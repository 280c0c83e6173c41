package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const upsertVectorSQL = `
	INSERT INTO pdf_vectors (namespace, id, embedding, text, page_number, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	ON CONFLICT (namespace, id) DO UPDATE
	SET embedding = EXCLUDED.embedding,
	    text = EXCLUDED.text,
	    page_number = EXCLUDED.page_number,
	    updated_at = NOW()
`

// PostgresIndex keeps vectors in the pdf_vectors table. Queries are exact
// cosine scans restricted to one namespace via the primary key.
type PostgresIndex struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresIndex(pool *pgxpool.Pool, dimension int) *PostgresIndex {
	return &PostgresIndex{pool: pool, dimension: dimension}
}

func (s *PostgresIndex) Upsert(ctx context.Context, namespace string, entries []Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	if s.pool == nil {
		return &WriteError{Namespace: namespace, Err: fmt.Errorf("postgres pool is nil")}
	}
	if err := checkDimensions(namespace, s.dimension, entries); err != nil {
		return err
	}
	entries = Dedupe(entries)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &WriteError{Namespace: namespace, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(upsertVectorSQL, namespace, entry.ID, pgvector.NewVector(entry.Values), entry.Metadata.Text, entry.Metadata.PageNumber)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range entries {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return &WriteError{Namespace: namespace, Err: fmt.Errorf("upsert vector %s: %w", entries[i].ID, execErr)}
		}
	}
	if closeErr := results.Close(); closeErr != nil {
		return &WriteError{Namespace: namespace, Err: fmt.Errorf("close batch: %w", closeErr)}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return &WriteError{Namespace: namespace, Err: fmt.Errorf("commit transaction: %w", commitErr)}
	}
	return nil
}

func (s *PostgresIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if s.pool == nil {
		return nil, &QueryError{Namespace: namespace, Err: fmt.Errorf("postgres pool is nil")}
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, &QueryError{Namespace: namespace, Err: fmt.Errorf("query vector has dimension %d, index expects %d", len(vector), s.dimension)}
	}
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, text, page_number, 1 - (embedding <=> $2::vector) AS score
		FROM pdf_vectors
		WHERE namespace = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3
	`, namespace, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, &QueryError{Namespace: namespace, Err: fmt.Errorf("query similar vectors: %w", err)}
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		if scanErr := rows.Scan(&m.ID, &m.Text, &m.PageNumber, &m.Score); scanErr != nil {
			return nil, &QueryError{Namespace: namespace, Err: fmt.Errorf("scan similar vector: %w", scanErr)}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Namespace: namespace, Err: err}
	}

	return matches, nil
}

func (s *PostgresIndex) Count(ctx context.Context, namespace string) (int, error) {
	if s.pool == nil {
		return 0, &QueryError{Namespace: namespace, Err: fmt.Errorf("postgres pool is nil")}
	}
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pdf_vectors WHERE namespace = $1", namespace).Scan(&n); err != nil {
		return 0, &QueryError{Namespace: namespace, Err: fmt.Errorf("count vectors: %w", err)}
	}
	return n, nil
}

func (s *PostgresIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	if s.pool == nil {
		return &WriteError{Namespace: namespace, Err: fmt.Errorf("postgres pool is nil")}
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM pdf_vectors WHERE namespace = $1", namespace); err != nil {
		return &WriteError{Namespace: namespace, Err: fmt.Errorf("delete namespace: %w", err)}
	}
	return nil
}

var _ Index = (*PostgresIndex)(nil)
