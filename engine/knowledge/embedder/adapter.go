package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mnemora/mnemora/engine/core"
)

// Config describes one text embedding capability. Model carries the
// provider-prefix convention, e.g. "openai/text-embedding-3-small".
type Config struct {
	Model         string
	Dimension     int
	BatchSize     int
	APIKey        string
	StripNewLines bool
}

var (
	errMissingModel     = errors.New("embedder: model is required")
	errInvalidDimension = errors.New("embedder: dimension must be greater than zero")
)

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Model) == "" {
		return errMissingModel
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.Model, errInvalidDimension)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return nil
}

// splitModelName separates the provider prefix from the model name.
func splitModelName(model string) (provider, name string) {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[:idx], model[idx+1:]
	}
	return "", model
}

// Adapter wraps a langchaingo embedder and adds a query-vector cache plus
// contextual errors.
type Adapter struct {
	model     string
	dimension int
	impl      embeddings.Embedder
	cache     *lru.Cache[string, []float32]
}

// New constructs a provider-backed adapter from the model's provider prefix.
func New(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder: config is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	impl, err := buildProviderEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{model: cfg.Model, dimension: cfg.Dimension, impl: impl}, nil
}

// Wrap constructs an adapter around an existing embedder implementation.
func Wrap(cfg *Config, impl embeddings.Embedder) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder: config is required")
	}
	if impl == nil {
		return nil, fmt.Errorf("embedder %q: implementation is required", cfg.Model)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Adapter{model: cfg.Model, dimension: cfg.Dimension, impl: impl}, nil
}

func buildProviderEmbedder(cfg *Config) (embeddings.Embedder, error) {
	provider, name := splitModelName(cfg.Model)
	switch provider {
	case "openai":
		opts := []openai.Option{openai.WithEmbeddingModel(name)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("embedder %q: initialize openai client: %w", cfg.Model, err)
		}
		impl, err := embeddings.NewEmbedder(client,
			embeddings.WithBatchSize(cfg.BatchSize),
			embeddings.WithStripNewLines(cfg.StripNewLines),
		)
		if err != nil {
			return nil, fmt.Errorf("embedder %q: construct embedder: %w", cfg.Model, err)
		}
		return impl, nil
	default:
		return nil, fmt.Errorf("embedder %q: provider %q is not supported", cfg.Model, provider)
	}
}

// Model returns the provider-prefixed model identity.
func (a *Adapter) Model() string { return a.model }

// Dimension returns the configured vector dimension.
func (a *Adapter) Dimension() int { return a.dimension }

// EnableCache turns on an LRU cache for query embeddings.
func (a *Adapter) EnableCache(size int) error {
	if size <= 0 {
		return fmt.Errorf("embedder %q: cache size must be greater than zero", a.model)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder %q: init cache: %w", a.model, err)
	}
	a.cache = cache
	return nil
}

// EmbedDocuments embeds a batch of texts.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := a.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", a.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder %q: received %d vectors for %d texts", a.model, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds one query string, consulting the cache when enabled.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if a.cache != nil {
		if vector, ok := a.cache.Get(key); ok {
			return core.CloneSlice(vector), nil
		}
	}
	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", a.model, err)
	}
	if a.cache != nil && len(vector) > 0 {
		a.cache.Add(key, core.CloneSlice(vector))
	}
	return vector, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
