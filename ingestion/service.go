package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ryanakml/pdf-chatbots/embeddings"
	"github.com/Ryanakml/pdf-chatbots/knowledge"
	"github.com/Ryanakml/pdf-chatbots/storage"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

const defaultConcurrency = 8

// ErrNoContent is returned for documents whose pages yield no text.
var ErrNoContent = errors.New("document has no extractable text")

// GraphSyncer receives a copy of every successfully indexed document.
type GraphSyncer interface {
	SyncDocument(ctx context.Context, doc knowledge.Document) error
}

type Options struct {
	Chunker      Chunker
	Concurrency  int
	Disambiguate bool
	Graph        GraphSyncer
	Logger       *zap.Logger
}

type Result struct {
	FileKey         string
	Namespace       string
	Pages           int
	Chunks          int
	VectorsUpserted int
}

type Service struct {
	storage      storage.Storage
	embedder     embeddings.Embedder
	index        vectorstore.Index
	graph        GraphSyncer
	chunker      Chunker
	logger       *zap.Logger
	concurrency  int
	disambiguate bool
	extract      func(path string) ([]Page, error)
}

func NewService(store storage.Storage, embedder embeddings.Embedder, index vectorstore.Index, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Service{
		storage:      store,
		embedder:     embedder,
		index:        index,
		graph:        opts.Graph,
		chunker:      opts.Chunker.normalized(),
		logger:       logger,
		concurrency:  concurrency,
		disambiguate: opts.Disambiguate,
		extract:      ExtractPages,
	}
}

// IngestDocument fetches fileKey from storage and indexes it into the
// namespace derived from the key. Nothing is written unless every chunk was
// embedded.
func (s *Service) IngestDocument(ctx context.Context, fileKey string) (Result, error) {
	if s.storage == nil {
		return Result{}, fmt.Errorf("storage not configured")
	}

	path, err := s.storage.Fetch(ctx, fileKey)
	if err != nil {
		return Result{}, fmt.Errorf("fetch document: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("remove temp file", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	return s.IngestFile(ctx, fileKey, path)
}

// IngestFile indexes a local PDF under the namespace of fileKey.
func (s *Service) IngestFile(ctx context.Context, fileKey, path string) (Result, error) {
	if s.embedder == nil {
		return Result{}, fmt.Errorf("embedder not configured")
	}
	if s.index == nil {
		return Result{}, fmt.Errorf("vector index not configured")
	}

	namespace := vectorstore.Namespace(fileKey, s.disambiguate)
	logger := s.logger.With(zap.String("file_key", fileKey), zap.String("namespace", namespace))

	pages, err := s.extract(path)
	if err != nil {
		return Result{}, err
	}

	chunks := s.chunker.ChunkPages(pages)
	if len(chunks) == 0 {
		return Result{}, ErrNoContent
	}
	logger.Info("document chunked", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("generate embeddings: %w", err)
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vectorstore.Entry{
			ID:       chunk.SourceHash,
			Values:   vectors[i],
			Metadata: chunk.Metadata,
		}
	}
	// Identical chunk text shares one ID; only the last copy is stored.
	entries = vectorstore.Dedupe(entries)

	if err := s.index.Upsert(ctx, namespace, entries); err != nil {
		logger.Error("upsert vectors",
			zap.Int("dimension", len(entries[0].Values)),
			zap.Int("vectors", len(entries)),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("upsert vectors: %w", err)
	}

	if s.graph != nil {
		if err := s.graph.SyncDocument(ctx, graphDocument(namespace, fileKey, pages, chunks)); err != nil {
			logger.Warn("sync knowledge graph", zap.Error(err))
		}
	}

	logger.Info("document ingested", zap.Int("vectors", len(entries)))

	return Result{
		FileKey:         fileKey,
		Namespace:       namespace,
		Pages:           len(pages),
		Chunks:          len(chunks),
		VectorsUpserted: len(entries),
	}, nil
}

// embedChunks embeds every chunk concurrently. The first failure cancels the
// rest and is returned.
func (s *Service) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := embeddings.EmbedOne(gctx, s.embedder, chunk.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d (page %d): %w", i, chunk.PageNumber, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func graphDocument(namespace, fileKey string, pages []Page, chunks []Chunk) knowledge.Document {
	byPage := make(map[int][]knowledge.Chunk, len(pages))
	for i, chunk := range chunks {
		byPage[chunk.PageNumber] = append(byPage[chunk.PageNumber], knowledge.Chunk{
			ID:    chunk.SourceHash,
			Index: i,
			Text:  chunk.Text,
		})
	}

	doc := knowledge.Document{Namespace: namespace, FileKey: fileKey}
	for _, page := range pages {
		doc.Pages = append(doc.Pages, knowledge.Page{Number: page.Number, Chunks: byPage[page.Number]})
	}
	return doc
}
