// Package config loads runtime settings from env files, an optional YAML file
// and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderHTTP   = "http"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	StorageS3    = "s3"
	StorageLocal = "local"

	VectorPostgres = "postgres"
	VectorMemory   = "memory"

	MetadataChunk = "chunk"
	MetadataPage  = "page"
)

// envFiles are loaded in order; variables already present in the environment
// are never overwritten.
var envFiles = []string{"env.local", ".env.local", ".env"}

type Config struct {
	PostgresDSN  string `yaml:"postgres_dsn"`
	Neo4jURI     string `yaml:"neo4j_uri"`
	Neo4jUser    string `yaml:"neo4j_username"`
	Neo4jPass    string `yaml:"neo4j_password"`
	GraphEnabled bool   `yaml:"graph_enabled"`

	Port   string `yaml:"port"`
	APIKey string `yaml:"api_key"`

	Llama      LlamaConfig     `yaml:"llama"`
	Embeddings EmbeddingConfig `yaml:"embeddings"`
	LLM        LLMConfig       `yaml:"llm"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Vector    VectorConfig    `yaml:"vector"`
	Storage   StorageConfig   `yaml:"storage"`
}

// LlamaConfig describes the self-hosted HTTP model server used by the "http"
// embedding and llm providers.
type LlamaConfig struct {
	BaseURL       string `yaml:"base_url"`
	EmbedPath     string `yaml:"embed_path"`
	ChatPath      string `yaml:"chat_path"`
	APIKey        string `yaml:"api_key"`
	RequestField  string `yaml:"request_field"`
	ResponseField string `yaml:"response_field"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// Concurrency bounds in-flight embedding calls during ingestion.
	Concurrency int `yaml:"concurrency"`
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type RetrievalConfig struct {
	MinScore        float64 `yaml:"min_score"`
	TopK            int     `yaml:"top_k"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

type ChunkingConfig struct {
	Size             int    `yaml:"size"`
	Overlap          int    `yaml:"overlap"`
	MaxMetadataBytes int    `yaml:"max_metadata_bytes"`
	MetadataMode     string `yaml:"metadata_mode"`
}

type VectorConfig struct {
	Backend string `yaml:"backend"`
	// Disambiguate appends a key hash to namespaces that lost characters
	// during ASCII sanitising.
	Disambiguate bool `yaml:"disambiguate"`
}

type StorageConfig struct {
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Dir             string `yaml:"dir"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		PostgresDSN: "postgres://localhost:5432/pdf-chatbots?sslmode=disable",
		Neo4jURI:    "neo4j://localhost:7687",
		Neo4jUser:   "neo4j",
		Neo4jPass:   "password",
		Port:        "8080",
		Llama: LlamaConfig{
			EmbedPath:     "/embed",
			ChatPath:      "/summarize",
			RequestField:  "text",
			ResponseField: "embedding",
		},
		Embeddings: EmbeddingConfig{
			Provider:    ProviderHTTP,
			Model:       "nomic-embed-text",
			Dimension:   768,
			Concurrency: 8,
		},
		LLM: LLMConfig{
			Provider: ProviderHTTP,
			Model:    "llama3.1:8b",
		},
		OllamaHost: "http://localhost:11434",
		Retrieval: RetrievalConfig{
			MinScore:        0.3,
			TopK:            5,
			MaxContextChars: 3000,
		},
		Chunking: ChunkingConfig{
			Size:             1000,
			Overlap:          200,
			MaxMetadataBytes: 36000,
			MetadataMode:     MetadataChunk,
		},
		Vector: VectorConfig{
			Backend:      VectorPostgres,
			Disambiguate: true,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Dir:     "./uploads",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional) and the
// environment. It does not validate; call Validate before use.
func Load(path string) (Config, error) {
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", name, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	env := envReader{}
	env.str(&cfg.PostgresDSN, "POSTGRES_DSN", "DATABASE_URL")
	env.str(&cfg.Neo4jURI, "NEO4J_URI")
	env.str(&cfg.Neo4jUser, "NEO4J_USERNAME")
	env.str(&cfg.Neo4jPass, "NEO4J_PASSWORD")
	env.boolean(&cfg.GraphEnabled, "GRAPH_ENABLED")
	env.str(&cfg.Port, "PORT")
	env.str(&cfg.APIKey, "API_KEY")

	env.str(&cfg.Llama.BaseURL, "LLAMA_API_BASE_URL", "LLM_API_BASE_URL")
	env.str(&cfg.Llama.EmbedPath, "LLAMA_EMBED_PATH")
	env.str(&cfg.Llama.ChatPath, "LLAMA_CHAT_PATH")
	env.str(&cfg.Llama.APIKey, "LLAMA_API_KEY", "LLM_API_KEY")
	env.str(&cfg.Llama.RequestField, "LLAMA_REQUEST_FIELD")
	env.str(&cfg.Llama.ResponseField, "LLAMA_RESPONSE_KEY")

	env.str(&cfg.Embeddings.Provider, "EMBEDDING_PROVIDER")
	env.str(&cfg.Embeddings.Model, "EMBEDDING_MODEL")
	env.integer(&cfg.Embeddings.Dimension, "EMBEDDING_DIMENSION")
	env.integer(&cfg.Embeddings.Concurrency, "EMBED_CONCURRENCY")
	env.float(&cfg.Embeddings.RateLimit, "EMBED_RATE_LIMIT")
	env.str(&cfg.LLM.Provider, "LLM_PROVIDER")
	env.str(&cfg.LLM.Model, "LLM_MODEL")

	env.str(&cfg.OllamaHost, "OLLAMA_HOST")
	env.str(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	env.str(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")

	env.float(&cfg.Retrieval.MinScore, "CONTEXT_MIN_SCORE")
	env.integer(&cfg.Retrieval.TopK, "CONTEXT_TOP_K")
	env.integer(&cfg.Retrieval.MaxContextChars, "CONTEXT_MAX_CHARS")

	env.integer(&cfg.Chunking.Size, "CHUNK_SIZE")
	env.integer(&cfg.Chunking.Overlap, "CHUNK_OVERLAP")
	env.integer(&cfg.Chunking.MaxMetadataBytes, "CHUNK_METADATA_BYTES")
	env.str(&cfg.Chunking.MetadataMode, "METADATA_MODE")

	env.str(&cfg.Vector.Backend, "VECTOR_BACKEND")
	env.boolean(&cfg.Vector.Disambiguate, "NAMESPACE_DISAMBIGUATE")

	env.str(&cfg.Storage.Backend, "STORAGE_BACKEND")
	env.str(&cfg.Storage.Bucket, "S3_BUCKET", "S3_BUCKET_NAME", "NEXT_PUBLIC_S3_BUCKET_NAME")
	env.str(&cfg.Storage.Region, "S3_REGION", "NEXT_PUBLIC_S3_REGION")
	env.str(&cfg.Storage.AccessKeyID, "S3_ACCESS_KEY_ID", "NEXT_PUBLIC_S3_ACCESS_KEY_ID")
	env.str(&cfg.Storage.SecretAccessKey, "S3_SECRET_ACCESS_KEY", "NEXT_PUBLIC_S3_SECRET_ACCESS_KEY")
	env.str(&cfg.Storage.Dir, "STORAGE_DIR")

	if len(env.problems) > 0 {
		return Config{}, &ValidationError{Problems: env.problems}
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	checkProvider := func(kind, provider string) {
		switch provider {
		case ProviderHTTP:
			if strings.TrimSpace(c.Llama.BaseURL) == "" {
				add("%s provider %q requires LLAMA_API_BASE_URL", kind, provider)
			}
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				add("%s provider %q requires OPENAI_API_KEY", kind, provider)
			}
		case ProviderOllama:
		default:
			add("unknown %s provider: %q", kind, provider)
		}
	}
	checkProvider("embedding", c.Embeddings.Provider)
	checkProvider("llm", c.LLM.Provider)

	if c.Embeddings.Provider == ProviderHTTP {
		if c.Llama.RequestField == "" || c.Llama.ResponseField == "" {
			add("embedding request and response field names must be set")
		}
	}
	if c.Embeddings.Concurrency <= 0 {
		add("EMBED_CONCURRENCY must be positive")
	}
	if c.Embeddings.RateLimit < 0 {
		add("EMBED_RATE_LIMIT must not be negative")
	}

	switch c.Vector.Backend {
	case VectorPostgres:
		if c.PostgresDSN == "" {
			add("vector backend %q requires POSTGRES_DSN", c.Vector.Backend)
		}
		if c.Embeddings.Dimension <= 0 {
			add("EMBEDDING_DIMENSION must be positive for the postgres vector backend")
		}
	case VectorMemory:
	default:
		add("unknown vector backend: %q", c.Vector.Backend)
	}

	switch c.Storage.Backend {
	case StorageS3:
		if c.Storage.Bucket == "" || c.Storage.Region == "" {
			add("s3 storage requires S3_BUCKET_NAME and S3_REGION")
		}
	case StorageLocal:
		if c.Storage.Dir == "" {
			add("local storage requires STORAGE_DIR")
		}
	default:
		add("unknown storage backend: %q", c.Storage.Backend)
	}

	if c.Retrieval.TopK <= 0 {
		add("CONTEXT_TOP_K must be positive")
	}
	if c.Retrieval.MaxContextChars <= 0 {
		add("CONTEXT_MAX_CHARS must be positive")
	}
	if c.Chunking.Size <= 0 {
		add("CHUNK_SIZE must be positive")
	}
	if c.Chunking.Overlap < 0 {
		add("CHUNK_OVERLAP must not be negative")
	}
	if c.Chunking.MaxMetadataBytes <= 0 {
		add("CHUNK_METADATA_BYTES must be positive")
	}
	if c.Chunking.MetadataMode != MetadataChunk && c.Chunking.MetadataMode != MetadataPage {
		add("METADATA_MODE must be %q or %q", MetadataChunk, MetadataPage)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError reports missing or malformed configuration. It is fatal at
// startup and never degraded around.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// envReader overlays environment variables onto config fields. The first
// non-empty key wins; parse failures are collected rather than ignored.
type envReader struct {
	problems []string
}

func (r *envReader) lookup(keys ...string) (string, string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return key, value, true
		}
	}
	return "", "", false
}

func (r *envReader) str(dst *string, keys ...string) {
	if _, value, ok := r.lookup(keys...); ok {
		*dst = value
	}
}

func (r *envReader) integer(dst *int, keys ...string) {
	key, value, ok := r.lookup(keys...)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not an integer", key, value))
		return
	}
	*dst = n
}

func (r *envReader) float(dst *float64, keys ...string) {
	key, value, ok := r.lookup(keys...)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not a number", key, value))
		return
	}
	*dst = f
}

func (r *envReader) boolean(dst *bool, keys ...string) {
	key, value, ok := r.lookup(keys...)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not a boolean", key, value))
		return
	}
	*dst = b
}
