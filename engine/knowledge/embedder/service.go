package embedder

import (
	"context"
	"errors"
	"strings"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/engine/knowledge/blob"
	"github.com/mnemora/mnemora/engine/knowledge/chunk"
	"github.com/mnemora/mnemora/engine/knowledge/extract"
	"github.com/mnemora/mnemora/pkg/logger"
)

// MultimodalInput is one element of a mixed embedding request: either text or
// an image, never both in the same element.
type MultimodalInput struct {
	Text      string
	Image     []byte
	ImageType string
}

// MultimodalClient embeds a heterogeneous item sequence into one vector. It is
// backed by an external provider; model identity follows the provider-prefix
// convention ("<provider>/<model-name>").
type MultimodalClient interface {
	Embed(ctx context.Context, model string, inputs []MultimodalInput) ([]float32, error)
}

// Service turns extracted data chunks into persisted, vectorized chunks. It
// dispatches each data chunk to the text or mixed capability based on content
// and collection flags.
type Service struct {
	text       *Adapter
	mixed      MultimodalClient
	mixedModel string
	blobs      *blob.Store
	budget     chunk.Options
}

// Option configures a Service.
type Option func(*Service)

// WithMultimodal attaches the mixed embedding capability.
func WithMultimodal(client MultimodalClient, model string) Option {
	return func(s *Service) {
		s.mixed = client
		s.mixedModel = model
	}
}

// WithBlobStore sets the store for image and multi-part chunk content.
func WithBlobStore(store *blob.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// WithEmbeddingBudget overrides the provider input-size budget used to
// re-split text right before the embedding call.
func WithEmbeddingBudget(opts chunk.Options) Option {
	return func(s *Service) { s.budget = opts }
}

// NewService builds an embedding service around the text adapter.
func NewService(text *Adapter, opts ...Option) (*Service, error) {
	if text == nil {
		return nil, errors.New("embedder: text adapter is required")
	}
	s := &Service{text: text, budget: chunk.EmbeddingOptions()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TextModel returns the text capability's model identity.
func (s *Service) TextModel() string { return s.text.Model() }

// Embed converts the extracted data chunks of one item into vectorized chunks
// targeting the given collection. A data chunk whose content no configured
// capability can handle is a configuration defect; embedding-call failures are
// wrapped as EmbeddingError so the orchestrator can fail the item without the
// error escaping further.
func (s *Service) Embed(
	ctx context.Context,
	item *knowledge.SourceItem,
	data []extract.DataChunk,
	col *knowledge.Collection,
) ([]knowledge.Chunk, error) {
	log := logger.FromContext(ctx)
	chunks := make([]knowledge.Chunk, 0, len(data))
	for _, dc := range data {
		model := SelectModel(dc.HasText(), dc.HasImage(), col)
		switch model {
		case ModelText:
			out, err := s.embedText(ctx, item, &dc, col)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, out...)
		case ModelMixed:
			out, err := s.embedMixed(ctx, item, &dc, col)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, *out)
		default:
			return nil, knowledge.NewConfigError(
				"collection %q cannot embed content (text=%t image=%t text_capable=%t multimodal=%t)",
				col.Name, dc.HasText(), dc.HasImage(), col.TextCapable, col.Multimodal,
			)
		}
	}
	if len(chunks) == 0 {
		return nil, &knowledge.EmbeddingError{Model: s.text.Model(), Err: errors.New("no embeddable content")}
	}
	log.Debug("embedded item", "item_id", item.ID, "collection", col.Name, "chunks", len(chunks))
	return chunks, nil
}

func (s *Service) embedText(
	ctx context.Context,
	item *knowledge.SourceItem,
	dc *extract.DataChunk,
	col *knowledge.Collection,
) ([]knowledge.Chunk, error) {
	texts := chunk.Split(s.joinText(dc), s.budget)
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := s.text.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &knowledge.EmbeddingError{Model: s.text.Model(), Err: err}
	}
	out := make([]knowledge.Chunk, 0, len(vectors))
	for i, vector := range vectors {
		if err := checkDimension(vector, col, s.text.Model()); err != nil {
			return nil, err
		}
		out = append(out, knowledge.Chunk{
			ID:             core.MustNewID(),
			ItemID:         item.ID,
			Collection:     col.Name,
			EmbeddingModel: s.text.Model(),
			Vector:         vector,
			Content:        texts[i],
			Metadata:       core.CloneMap(dc.Metadata),
		})
	}
	return out, nil
}

func (s *Service) embedMixed(
	ctx context.Context,
	item *knowledge.SourceItem,
	dc *extract.DataChunk,
	col *knowledge.Collection,
) (*knowledge.Chunk, error) {
	if s.mixed == nil {
		return nil, knowledge.NewConfigError(
			"collection %q requires a mixed embedding model but none is configured", col.Name,
		)
	}
	if s.blobs == nil {
		return nil, knowledge.NewConfigError("image content requires a blob store")
	}
	inputs := make([]MultimodalInput, 0, len(dc.Items))
	for _, it := range dc.Items {
		inputs = append(inputs, MultimodalInput{Text: it.Text, Image: it.Image, ImageType: it.ImageType})
	}
	vector, err := s.mixed.Embed(ctx, s.mixedModel, inputs)
	if err != nil {
		return nil, &knowledge.EmbeddingError{Model: s.mixedModel, Err: err}
	}
	if len(vector) == 0 {
		return nil, &knowledge.EmbeddingError{Model: s.mixedModel, Err: errors.New("empty embedding result")}
	}
	if err := checkDimension(vector, col, s.mixedModel); err != nil {
		return nil, err
	}
	out := knowledge.Chunk{
		ID:             core.MustNewID(),
		ItemID:         item.ID,
		Collection:     col.Name,
		EmbeddingModel: s.mixedModel,
		Vector:         vector,
		Metadata:       core.CloneMap(dc.Metadata),
	}
	refs, err := s.writeBlobs(string(out.ID), dc.Items)
	if err != nil {
		return nil, &knowledge.EmbeddingError{Model: s.mixedModel, Err: err}
	}
	out.FileRefs = refs
	return &out, nil
}

// writeBlobs persists each item of a mixed chunk. A single-item chunk keeps
// the bare chunk-id filename; multi-item chunks get ordinal suffixes.
func (s *Service) writeBlobs(chunkID string, items []extract.Item) ([]string, error) {
	refs := make([]string, 0, len(items))
	for i, it := range items {
		ordinal := i
		if len(items) == 1 {
			ordinal = -1
		}
		contentType := it.ImageType
		data := it.Image
		if it.Text != "" {
			contentType = "text/plain"
			data = []byte(it.Text)
		}
		name, err := s.blobs.Write(chunkID, ordinal, contentType, data)
		if err != nil {
			return nil, err
		}
		refs = append(refs, name)
	}
	return refs, nil
}

func (s *Service) joinText(dc *extract.DataChunk) string {
	parts := make([]string, 0, len(dc.Items))
	for _, it := range dc.Items {
		if t := strings.TrimSpace(it.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// EmbedQueryText embeds a query string with the text capability.
func (s *Service) EmbedQueryText(ctx context.Context, query string) ([]float32, error) {
	vector, err := s.text.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &knowledge.EmbeddingError{Model: s.text.Model(), Err: err}
	}
	return vector, nil
}

// EmbedQueryMixed embeds a query string with the mixed capability.
func (s *Service) EmbedQueryMixed(ctx context.Context, query string) ([]float32, error) {
	if s.mixed == nil {
		return nil, knowledge.NewConfigError("mixed embedding model is not configured")
	}
	vector, err := s.mixed.Embed(ctx, s.mixedModel, []MultimodalInput{{Text: query}})
	if err != nil {
		return nil, &knowledge.EmbeddingError{Model: s.mixedModel, Err: err}
	}
	return vector, nil
}

// HasMixed reports whether the mixed capability is configured.
func (s *Service) HasMixed() bool { return s.mixed != nil }

func checkDimension(vector []float32, col *knowledge.Collection, model string) error {
	if len(vector) != col.Dimension {
		return knowledge.NewConfigError(
			"model %q produced %d-dimensional vectors for collection %q (expects %d)",
			model, len(vector), col.Name, col.Dimension,
		)
	}
	return nil
}
