// Package app wires configuration into ready-to-use services. Every handle is
// built lazily on first use and shared afterwards.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/Ryanakml/pdf-chatbots/chat"
	"github.com/Ryanakml/pdf-chatbots/config"
	"github.com/Ryanakml/pdf-chatbots/database"
	"github.com/Ryanakml/pdf-chatbots/embeddings"
	"github.com/Ryanakml/pdf-chatbots/ingestion"
	"github.com/Ryanakml/pdf-chatbots/knowledge"
	"github.com/Ryanakml/pdf-chatbots/llm"
	"github.com/Ryanakml/pdf-chatbots/storage"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

type Container struct {
	cfg    config.Config
	ctx    context.Context
	logger *zap.Logger

	pool      func() (*pgxpool.Pool, error)
	driver    func() (neo4j.DriverWithContext, error)
	embedder  func() (embeddings.Embedder, error)
	index     func() (vectorstore.Index, error)
	chats     func() (chat.Store, error)
	llmClient func() (llm.Client, error)
	storage   func() (storage.Storage, error)

	mu      sync.Mutex
	closers []func()
}

// New returns a Container for cfg. ctx bounds connection setup only.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{cfg: cfg, ctx: ctx, logger: logger}

	c.pool = sync.OnceValues(c.newPool)
	c.driver = sync.OnceValues(c.newDriver)
	c.embedder = sync.OnceValues(func() (embeddings.Embedder, error) {
		return embeddings.NewEmbedder(c.cfg)
	})
	c.index = sync.OnceValues(c.newIndex)
	c.chats = sync.OnceValues(c.newChatStore)
	c.llmClient = sync.OnceValues(func() (llm.Client, error) {
		return llm.NewClient(c.cfg)
	})
	c.storage = sync.OnceValues(func() (storage.Storage, error) {
		return storage.New(c.ctx, c.cfg.Storage)
	})
	return c
}

func (c *Container) Config() config.Config { return c.cfg }

func (c *Container) Logger() *zap.Logger { return c.logger }

func (c *Container) Pool() (*pgxpool.Pool, error) { return c.pool() }

func (c *Container) Embedder() (embeddings.Embedder, error) { return c.embedder() }

func (c *Container) Index() (vectorstore.Index, error) { return c.index() }

func (c *Container) Chats() (chat.Store, error) { return c.chats() }

func (c *Container) LLM() (llm.Client, error) { return c.llmClient() }

func (c *Container) Storage() (storage.Storage, error) { return c.storage() }

// Graph returns nil without error when the knowledge graph is disabled.
func (c *Container) Graph() (*knowledge.Graph, error) {
	if !c.cfg.GraphEnabled {
		return nil, nil
	}
	driver, err := c.driver()
	if err != nil {
		return nil, err
	}
	return knowledge.NewGraph(driver), nil
}

// Migrate creates the Postgres schema.
func (c *Container) Migrate(ctx context.Context) error {
	pool, err := c.pool()
	if err != nil {
		return err
	}
	return database.EnsureSchema(ctx, pool, c.cfg.Embeddings.Dimension)
}

func (c *Container) Ingestion() (*ingestion.Service, error) {
	store, err := c.storage()
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	embedder, err := c.embedder()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	index, err := c.index()
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	graph, err := c.Graph()
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: %w", err)
	}

	opts := ingestion.Options{
		Chunker:      ingestion.NewChunker(c.cfg.Chunking),
		Concurrency:  c.cfg.Embeddings.Concurrency,
		Disambiguate: c.cfg.Vector.Disambiguate,
		Logger:       c.logger.Named("ingestion"),
	}
	if graph != nil {
		opts.Graph = graph
	}
	return ingestion.NewService(store, embedder, index, opts), nil
}

func (c *Container) Chat() (*chat.Service, error) {
	embedder, err := c.embedder()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	index, err := c.index()
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	client, err := c.llmClient()
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	store, err := c.chats()
	if err != nil {
		return nil, fmt.Errorf("chat store: %w", err)
	}
	graph, err := c.Graph()
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: %w", err)
	}

	retriever := chat.NewRetriever(embedder, index, chat.RetrieverConfig{
		TopK:         c.cfg.Retrieval.TopK,
		MinScore:     c.cfg.Retrieval.MinScore,
		MaxChars:     c.cfg.Retrieval.MaxContextChars,
		Disambiguate: c.cfg.Vector.Disambiguate,
	}, c.logger.Named("retriever"))

	opts := chat.Options{
		Store:        store,
		Disambiguate: c.cfg.Vector.Disambiguate,
		Logger:       c.logger.Named("chat"),
	}
	if graph != nil {
		opts.Graph = graph
	}
	return chat.NewService(retriever, client, opts), nil
}

// Close releases every connection that was opened.
func (c *Container) Close() {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func (c *Container) onClose(fn func()) {
	c.mu.Lock()
	c.closers = append(c.closers, fn)
	c.mu.Unlock()
}

func (c *Container) newPool() (*pgxpool.Pool, error) {
	pool, err := database.NewPostgresPool(c.ctx, c.cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	c.onClose(pool.Close)
	return pool, nil
}

func (c *Container) newDriver() (neo4j.DriverWithContext, error) {
	driver, err := database.NewNeo4jDriver(c.ctx, c.cfg.Neo4jURI, c.cfg.Neo4jUser, c.cfg.Neo4jPass)
	if err != nil {
		return nil, fmt.Errorf("neo4j connection: %w", err)
	}
	c.onClose(func() {
		if err := driver.Close(context.Background()); err != nil {
			c.logger.Warn("close neo4j driver", zap.Error(err))
		}
	})
	return driver, nil
}

func (c *Container) newIndex() (vectorstore.Index, error) {
	switch c.cfg.Vector.Backend {
	case config.VectorPostgres:
		pool, err := c.pool()
		if err != nil {
			return nil, err
		}
		return vectorstore.NewPostgresIndex(pool, c.cfg.Embeddings.Dimension), nil
	case config.VectorMemory:
		return vectorstore.NewMemoryIndex(c.cfg.Embeddings.Dimension), nil
	default:
		return nil, &config.ValidationError{Problems: []string{fmt.Sprintf("unknown vector backend: %q", c.cfg.Vector.Backend)}}
	}
}

// newChatStore keeps chats next to the vectors: in Postgres for the postgres
// backend and in process memory otherwise.
func (c *Container) newChatStore() (chat.Store, error) {
	if c.cfg.Vector.Backend != config.VectorPostgres {
		return chat.NewMemoryStore(), nil
	}
	pool, err := c.pool()
	if err != nil {
		return nil, err
	}
	return chat.NewPostgresStore(pool), nil
}
