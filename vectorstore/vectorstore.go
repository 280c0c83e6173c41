// Package vectorstore stores chunk embeddings in per-document namespaces and
// answers nearest-neighbour queries against them.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Metadata travels with every stored vector and comes back with each match.
type Metadata struct {
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
}

type Entry struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

type Match struct {
	ID         string
	Score      float64
	Text       string
	PageNumber int
}

// Index is a namespaced vector index. Upsert is idempotent per ID and
// all-or-nothing per call. Query returns matches ordered by descending score
// and an empty slice, not an error, when the namespace holds nothing.
type Index interface {
	Upsert(ctx context.Context, namespace string, entries []Entry) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
	Count(ctx context.Context, namespace string) (int, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Namespace maps a storage key to its index namespace by dropping every
// non-ASCII character. With disambiguate set, keys that lost characters get a
// short digest of the full key appended so that distinct keys stay distinct.
func Namespace(fileKey string, disambiguate bool) string {
	var b strings.Builder
	b.Grow(len(fileKey))
	stripped := false
	for _, r := range fileKey {
		if r > 0x7f {
			stripped = true
			continue
		}
		b.WriteRune(r)
	}
	if disambiguate && stripped {
		sum := sha256.Sum256([]byte(fileKey))
		if b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteString(hex.EncodeToString(sum[:])[:12])
	}
	return b.String()
}

// WriteError aborts an upsert batch. Dimension holds the offending vector
// length when the failure is a dimension mismatch.
type WriteError struct {
	Namespace string
	Expected  int
	Dimension int
	Err       error
}

func (e *WriteError) Error() string {
	if e.Expected > 0 && e.Dimension != e.Expected {
		return fmt.Sprintf("upsert into namespace %q: vector dimension %d does not match index dimension %d", e.Namespace, e.Dimension, e.Expected)
	}
	return fmt.Sprintf("upsert into namespace %q: %v", e.Namespace, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// QueryError reports a failed lookup. An empty result is never a QueryError.
type QueryError struct {
	Namespace string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query namespace %q: %v", e.Namespace, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func checkDimensions(namespace string, expected int, entries []Entry) error {
	if expected <= 0 {
		return nil
	}
	for _, entry := range entries {
		if len(entry.Values) != expected {
			return &WriteError{Namespace: namespace, Expected: expected, Dimension: len(entry.Values)}
		}
	}
	return nil
}

// Dedupe keeps the last entry for each ID, in first-seen order. Upsert applies
// it to every batch.
func Dedupe(entries []Entry) []Entry {
	pos := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if i, ok := pos[entry.ID]; ok {
			out[i] = entry
			continue
		}
		pos[entry.ID] = len(out)
		out = append(out, entry)
	}
	return out
}
