package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force cosine index held in process memory.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]*memoryNamespace
}

type memoryNamespace struct {
	dimension int
	entries   map[string]Entry
}

// NewMemoryIndex creates an index. With dimension zero each namespace adopts
// the dimension of the first vector written to it.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension:  dimension,
		namespaces: make(map[string]*memoryNamespace),
	}
}

func (s *MemoryIndex) Upsert(_ context.Context, namespace string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	expected := s.dimension
	if expected == 0 {
		if ns != nil {
			expected = ns.dimension
		} else {
			expected = len(entries[0].Values)
		}
	}
	if err := checkDimensions(namespace, expected, entries); err != nil {
		return err
	}

	if ns == nil {
		ns = &memoryNamespace{dimension: expected, entries: make(map[string]Entry)}
		s.namespaces[namespace] = ns
	}
	for _, entry := range entries {
		values := make([]float32, len(entry.Values))
		copy(values, entry.Values)
		entry.Values = values
		ns.entries[entry.ID] = entry
	}
	return nil
}

func (s *MemoryIndex) Query(_ context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	if ns == nil || len(ns.entries) == 0 {
		return []Match{}, nil
	}
	if len(vector) != ns.dimension {
		return nil, &QueryError{Namespace: namespace, Err: fmt.Errorf("query vector has dimension %d, namespace holds %d", len(vector), ns.dimension)}
	}

	matches := make([]Match, 0, len(ns.entries))
	for _, entry := range ns.entries {
		matches = append(matches, Match{
			ID:         entry.ID,
			Score:      cosine(entry.Values, vector),
			Text:       entry.Metadata.Text,
			PageNumber: entry.Metadata.PageNumber,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryIndex) Count(_ context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ns := s.namespaces[namespace]; ns != nil {
		return len(ns.entries), nil
	}
	return 0, nil
}

func (s *MemoryIndex) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, namespace)
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Index = (*MemoryIndex)(nil)
