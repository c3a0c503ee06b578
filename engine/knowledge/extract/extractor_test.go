package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/engine/knowledge/chunk"
)

type stubRasterizer struct {
	pages []Page
	err   error
}

func (s *stubRasterizer) Rasterize(context.Context, []byte) ([]Page, error) {
	return s.pages, s.err
}

type stubConverter struct {
	pdf []byte
	err error
}

func (s *stubConverter) ToPDF(context.Context, []byte, string) ([]byte, error) {
	return s.pdf, s.err
}

type stubSummarizer struct {
	summary string
	tags    []string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(context.Context, string) (string, []string, error) {
	s.calls++
	return s.summary, s.tags, s.err
}

func TestResolve(t *testing.T) {
	t.Run("ShouldResolveRegisteredStrategies", func(t *testing.T) {
		cases := map[string]Strategy{
			"application/pdf": StrategyRasterize,
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document": StrategyConvertRasterize,
			"image/png":            StrategyImagePassthrough,
			"image/jpeg":           StrategyImagePassthrough,
			"text/plain":           StrategyTextSplit,
			"text/markdown":        StrategyTextSplit,
			"text/html; charset=utf-8": StrategyTextSplit,
		}
		for mime, expected := range cases {
			strategy, ok := Resolve(mime)
			require.True(t, ok, mime)
			assert.Equal(t, expected, strategy, mime)
		}
	})

	t.Run("ShouldRejectUnsupportedTypes", func(t *testing.T) {
		_, ok := Resolve("application/x-tar")
		assert.False(t, ok)
		_, ok = Resolve("audio/mpeg")
		assert.False(t, ok)
	})
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldReturnEmptyListForUnsupportedMime", func(t *testing.T) {
		extractor := New()
		chunks, err := extractor.Extract(ctx, "application/x-tar", knowledge.ModalityDoc, []byte("x"))
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("ShouldEmitOneChunkPerRasterizedPage", func(t *testing.T) {
		extractor := New(WithRasterizer(&stubRasterizer{pages: []Page{
			{Number: 1, PNG: []byte{1}, Width: 100, Height: 200},
			{Number: 2, PNG: []byte{2}, Width: 100, Height: 200},
		}}))
		chunks, err := extractor.Extract(ctx, "application/pdf", knowledge.ModalityDoc, []byte("pdf"))
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.True(t, chunks[0].HasImage())
		assert.Equal(t, 1, chunks[0].Metadata["page"])
		assert.Equal(t, 200, chunks[1].Metadata["height"])
	})

	t.Run("ShouldWrapRasterizerFailureAsExtractionError", func(t *testing.T) {
		extractor := New(WithRasterizer(&stubRasterizer{err: errors.New("corrupt")}))
		_, err := extractor.Extract(ctx, "application/pdf", knowledge.ModalityDoc, []byte("pdf"))
		var extractionErr *knowledge.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "application/pdf", extractionErr.MimeType)
	})

	t.Run("ShouldPassImagesThrough", func(t *testing.T) {
		extractor := New()
		content := []byte{0x89, 0x50, 0x4e, 0x47}
		chunks, err := extractor.Extract(ctx, "image/png", knowledge.ModalityPhoto, content)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, content, chunks[0].Items[0].Image)
		assert.Equal(t, "image/png", chunks[0].Items[0].ImageType)
	})

	t.Run("ShouldSplitTextIntoTokenBoundedChunks", func(t *testing.T) {
		extractor := New(WithChunkOptions(chunk.Options{MaxTokens: 20}))
		text := strings.Repeat("A sentence about things. ", 30)
		chunks, err := extractor.Extract(ctx, "text/plain", knowledge.ModalityText, []byte(text))
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.True(t, c.HasText())
			assert.False(t, c.HasImage())
		}
	})

	t.Run("ShouldAppendSummaryChunkForLongText", func(t *testing.T) {
		summarizer := &stubSummarizer{summary: "A study of things.", tags: []string{"things"}}
		extractor := New(
			WithChunkOptions(chunk.Options{MaxTokens: 20}),
			WithSummarizer(summarizer),
		)
		text := strings.Repeat("A sentence about things. ", 30)
		chunks, err := extractor.Extract(ctx, "text/plain", knowledge.ModalityText, []byte(text))
		require.NoError(t, err)
		require.Equal(t, 1, summarizer.calls)
		last := chunks[len(chunks)-1]
		assert.Equal(t, "A study of things.", last.Items[0].Text)
		assert.Equal(t, true, last.Metadata["summary"])
		assert.Equal(t, []string{"things"}, last.Metadata["tags"])
	})

	t.Run("ShouldSkipSummaryForShortText", func(t *testing.T) {
		summarizer := &stubSummarizer{summary: "unused"}
		extractor := New(WithSummarizer(summarizer))
		chunks, err := extractor.Extract(ctx, "text/plain", knowledge.ModalityText, []byte("short note"))
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Zero(t, summarizer.calls)
	})

	t.Run("ShouldDegradeToBodyTextWhenConversionFails", func(t *testing.T) {
		extractor := New(
			WithConverter(&stubConverter{err: errors.New("soffice missing")}),
			WithRasterizer(&stubRasterizer{err: errors.New("must not be called")}),
		)
		docx := buildDocx(t, []string{"First paragraph.", "Second paragraph."})
		const mime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		chunks, err := extractor.Extract(ctx, mime, knowledge.ModalityDoc, docx)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0].Items[0].Text, "First paragraph.")
		assert.Contains(t, chunks[0].Items[0].Text, "Second paragraph.")
	})
}

func TestParseSummary(t *testing.T) {
	t.Run("ShouldSplitBodyFromTagsLine", func(t *testing.T) {
		summary, tags := parseSummary("A note about Go.\nIt covers channels.\nTags: go, Channels , ")
		assert.Equal(t, "A note about Go. It covers channels.", summary)
		assert.Equal(t, []string{"go", "channels"}, tags)
	})

	t.Run("ShouldHandleMissingTags", func(t *testing.T) {
		summary, tags := parseSummary("Just a summary.")
		assert.Equal(t, "Just a summary.", summary)
		assert.Empty(t, tags)
	})
}
