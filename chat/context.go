package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Ryanakml/pdf-chatbots/embeddings"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

const (
	defaultTopK     = 5
	defaultMaxChars = 3000
)

type RetrieverConfig struct {
	TopK int
	// MinScore is inclusive: a match scoring exactly MinScore is kept.
	MinScore     float64
	MaxChars     int
	Disambiguate bool
}

// Retriever assembles the grounding context for a question about one document.
type Retriever struct {
	embedder embeddings.Embedder
	index    vectorstore.Index
	cfg      RetrieverConfig
	logger   *zap.Logger
}

func NewRetriever(embedder embeddings.Embedder, index vectorstore.Index, cfg RetrieverConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg, logger: logger}
}

// Context embeds query, looks up the document's namespace and joins the text
// of every match at or above the score threshold. An empty Text is a valid
// result meaning nothing relevant was found.
func (r *Retriever) Context(ctx context.Context, query, fileKey string) (Context, error) {
	if strings.TrimSpace(query) == "" {
		return Context{}, nil
	}
	if r.embedder == nil {
		return Context{}, fmt.Errorf("embedder is not configured")
	}
	if r.index == nil {
		return Context{}, fmt.Errorf("vector index is not configured")
	}

	vector, err := embeddings.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return Context{}, fmt.Errorf("embed query: %w", err)
	}

	namespace := vectorstore.Namespace(fileKey, r.cfg.Disambiguate)
	matches, err := r.index.Query(ctx, namespace, vector, r.cfg.TopK)
	if err != nil {
		return Context{}, fmt.Errorf("query index: %w", err)
	}

	logger := r.logger.With(zap.String("namespace", namespace))
	if len(matches) > 0 {
		logger.Debug("context matches", zap.Int("matches", len(matches)), zap.Float64("top_score", matches[0].Score))
	} else {
		logger.Warn("no matches for query")
	}

	kept := make([]vectorstore.Match, 0, len(matches))
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score < r.cfg.MinScore {
			continue
		}
		kept = append(kept, m)
		texts = append(texts, m.Text)
	}

	text := truncateRunes(strings.Join(texts, "\n"), r.cfg.MaxChars)
	if text == "" {
		logger.Warn("context empty after filtering", zap.Float64("min_score", r.cfg.MinScore))
	}

	return Context{Text: text, Matches: kept}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
