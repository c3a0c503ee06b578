package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/engine/knowledge/chunk"
	"github.com/mnemora/mnemora/pkg/logger"
)

// Extractor turns raw bytes into DataChunks according to the strategy
// registry. An unsupported mime type yields an empty chunk list, which is a
// valid outcome distinct from a real extraction failure; the caller logs it.
type Extractor struct {
	rasterizer Rasterizer
	converter  Converter
	summarizer Summarizer
	chunkOpts  chunk.Options
}

// Option customizes extractor construction.
type Option func(*Extractor)

// WithRasterizer overrides the default PDF page rasterizer.
func WithRasterizer(r Rasterizer) Option {
	return func(e *Extractor) { e.rasterizer = r }
}

// WithConverter overrides the default word-processor-to-PDF converter.
func WithConverter(c Converter) Option {
	return func(e *Extractor) { e.converter = c }
}

// WithSummarizer enables synthetic summary chunks for long text documents.
func WithSummarizer(s Summarizer) Option {
	return func(e *Extractor) { e.summarizer = s }
}

// WithChunkOptions overrides the retrieval-granularity chunking budget.
func WithChunkOptions(opts chunk.Options) Option {
	return func(e *Extractor) { e.chunkOpts = opts }
}

// New builds an extractor with the mupdf rasterizer and soffice converter.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		rasterizer: NewMuPDFRasterizer(),
		converter:  NewSofficeConverter(""),
		chunkOpts:  chunk.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract converts raw content into DataChunks for the given mime type. An
// empty mime type is sniffed from the content.
func (e *Extractor) Extract(
	ctx context.Context,
	mimeType string,
	modality knowledge.Modality,
	content []byte,
) ([]DataChunk, error) {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = mimetype.Detect(content).String()
	}
	strategy, ok := Resolve(mimeType)
	if !ok {
		return nil, nil
	}
	switch strategy {
	case StrategyRasterize:
		return e.rasterize(ctx, mimeType, modality, content)
	case StrategyConvertRasterize:
		return e.convertRasterize(ctx, mimeType, modality, content)
	case StrategyImagePassthrough:
		return []DataChunk{{
			Items:    []Item{{Image: content, ImageType: mimeType}},
			MimeType: mimeType,
			Modality: modality,
		}}, nil
	default:
		return e.splitText(ctx, mimeType, modality, string(content))
	}
}

func (e *Extractor) rasterize(
	ctx context.Context,
	mimeType string,
	modality knowledge.Modality,
	content []byte,
) ([]DataChunk, error) {
	pages, err := e.rasterizer.Rasterize(ctx, content)
	if err != nil {
		return nil, &knowledge.ExtractionError{MimeType: mimeType, Err: err}
	}
	chunks := make([]DataChunk, 0, len(pages))
	for _, page := range pages {
		chunks = append(chunks, DataChunk{
			Items: []Item{{Image: page.PNG, ImageType: "image/png"}},
			Metadata: map[string]any{
				"page":   page.Number,
				"width":  page.Width,
				"height": page.Height,
			},
			MimeType: mimeType,
			Modality: modality,
		})
	}
	return chunks, nil
}

// convertRasterize converts word-processor formats to PDF before
// rasterizing. Conversion failure degrades to direct body-text extraction
// instead of failing the item.
func (e *Extractor) convertRasterize(
	ctx context.Context,
	mimeType string,
	modality knowledge.Modality,
	content []byte,
) ([]DataChunk, error) {
	pdf, err := e.converter.ToPDF(ctx, content, mimeType)
	if err == nil {
		return e.rasterize(ctx, mimeType, modality, pdf)
	}
	logger.FromContext(ctx).Warn("document conversion failed, degrading to text extraction",
		"mime_type", mimeType, "error", err)
	text, textErr := documentBodyText(content, mimeType)
	if textErr != nil {
		return nil, &knowledge.ExtractionError{MimeType: mimeType, Err: textErr}
	}
	return e.splitText(ctx, mimeType, modality, text)
}

func (e *Extractor) splitText(
	ctx context.Context,
	mimeType string,
	modality knowledge.Modality,
	text string,
) ([]DataChunk, error) {
	spans := chunk.Split(text, e.chunkOpts)
	chunks := make([]DataChunk, 0, len(spans)+1)
	for _, span := range spans {
		chunks = append(chunks, textChunk(span, modality, mimeType, nil))
	}
	if e.summarizer != nil && isLongDocument(text, e.chunkOpts) {
		if summary := e.summaryChunk(ctx, mimeType, modality, text); summary != nil {
			chunks = append(chunks, *summary)
		}
	}
	return chunks, nil
}

// isLongDocument reports whether the text exceeds twice the chunk budget,
// the threshold past which a coarse summary chunk helps retrieval.
func isLongDocument(text string, opts chunk.Options) bool {
	return utf8.RuneCountInString(text) > 2*opts.MaxTokens*chunk.CharsPerToken
}

func (e *Extractor) summaryChunk(
	ctx context.Context,
	mimeType string,
	modality knowledge.Modality,
	text string,
) *DataChunk {
	summary, tags, err := e.summarizer.Summarize(ctx, text)
	if err != nil || strings.TrimSpace(summary) == "" {
		logger.FromContext(ctx).Warn("summary generation failed, skipping summary chunk",
			"mime_type", mimeType, "error", err)
		return nil
	}
	meta := map[string]any{"summary": true}
	if len(tags) > 0 {
		meta["tags"] = tags
	}
	out := textChunk(summary, modality, mimeType, meta)
	return &out
}
