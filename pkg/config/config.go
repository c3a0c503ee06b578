package config

import (
	"fmt"
	"time"

	"github.com/mnemora/mnemora/engine/knowledge"
)

// Config is the full application configuration. Defaults come from Default();
// environment variables prefixed with MNEMORA_ override individual keys.
type Config struct {
	Log         LogConfig              `koanf:"log"`
	Database    DatabaseConfig         `koanf:"database"`
	Qdrant      QdrantConfig           `koanf:"qdrant"`
	Embedding   EmbeddingConfig        `koanf:"embedding"`
	Chunking    ChunkingConfig         `koanf:"chunking"`
	Ingest      IngestConfig           `koanf:"ingest"`
	Query       QueryConfig            `koanf:"query"`
	Blob        BlobConfig             `koanf:"blob"`
	Collections []knowledge.Collection `koanf:"collections"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

type QdrantConfig struct {
	Endpoint string        `koanf:"endpoint"`
	APIKey   string        `koanf:"api_key"`
	Timeout  time.Duration `koanf:"timeout"`
}

type EmbeddingConfig struct {
	// Model follows the provider-prefix convention, e.g.
	// "openai/text-embedding-3-small".
	Model         string `koanf:"model"`
	MixedModel    string `koanf:"mixed_model"`
	Dimension     int    `koanf:"dimension"`
	BatchSize     int    `koanf:"batch_size"`
	APIKey        string `koanf:"api_key"`
	StripNewLines bool   `koanf:"strip_new_lines"`
	CacheSize     int    `koanf:"cache_size"`
}

type ChunkingConfig struct {
	MaxTokens     int `koanf:"max_tokens"`
	OverlapTokens int `koanf:"overlap_tokens"`
	// ProviderMaxTokens is the embedding call's input ceiling, distinct from
	// the retrieval-granularity budget above.
	ProviderMaxTokens int `koanf:"provider_max_tokens"`
}

type IngestConfig struct {
	RetryMax  uint64        `koanf:"retry_max"`
	RetryBase time.Duration `koanf:"retry_base"`
}

type QueryConfig struct {
	Limit         int           `koanf:"limit"`
	MinTextScore  float64       `koanf:"min_text_score"`
	MinMixedScore float64       `koanf:"min_mixed_score"`
	Aggregate     string        `koanf:"aggregate"`
	HydeEnabled   bool          `koanf:"hyde_enabled"`
	HydeTimeout   time.Duration `koanf:"hyde_timeout"`
	HydeCacheSize int           `koanf:"hyde_cache_size"`
}

type BlobConfig struct {
	Root string `koanf:"root"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Qdrant: QdrantConfig{
			Endpoint: "http://localhost:6333",
			Timeout:  30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:     "openai/text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 32,
			CacheSize: 512,
		},
		Chunking: ChunkingConfig{
			MaxTokens:         512,
			OverlapTokens:     64,
			ProviderMaxTokens: 8000,
		},
		Ingest: IngestConfig{
			RetryMax:  3,
			RetryBase: 500 * time.Millisecond,
		},
		Query: QueryConfig{
			Limit:         10,
			MinTextScore:  0.3,
			MinMixedScore: 0.5,
			Aggregate:     "max",
			HydeEnabled:   true,
			HydeTimeout:   5 * time.Second,
			HydeCacheSize: 256,
		},
		Blob: BlobConfig{Root: "./data/blobs"},
		Collections: []knowledge.Collection{
			{
				Name:        "knowledge",
				Dimension:   1536,
				Distance:    knowledge.DistanceCosine,
				TextCapable: true,
			},
		},
	}
}

// Validate checks the loaded configuration for defects.
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return fmt.Errorf("config: embedding.model is required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding.dimension must be greater than zero")
	}
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("config: chunking.max_tokens must be greater than zero")
	}
	if c.Chunking.ProviderMaxTokens < c.Chunking.MaxTokens {
		return fmt.Errorf("config: chunking.provider_max_tokens must be at least chunking.max_tokens")
	}
	switch c.Query.Aggregate {
	case "max", "sum":
	default:
		return fmt.Errorf("config: query.aggregate must be \"max\" or \"sum\", got %q", c.Query.Aggregate)
	}
	if len(c.Collections) == 0 {
		return fmt.Errorf("config: at least one collection is required")
	}
	seen := make(map[string]bool, len(c.Collections))
	for i := range c.Collections {
		col := &c.Collections[i]
		if err := col.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if seen[col.Name] {
			return fmt.Errorf("config: duplicate collection %q", col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}
