package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	passage string
	err     error
	block   bool
	calls   int
}

func (s *stubModel) GenerateContent(
	ctx context.Context,
	_ []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.passage}}}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := s.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return response.Choices[0].Content, nil
}

func TestExpand(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldSkipShortQueries", func(t *testing.T) {
		model := &stubModel{passage: "unused"}
		expander := NewExpander(model)
		literal, passage := expander.Expand(ctx, "three word query")
		assert.Equal(t, "three word query", literal)
		assert.Empty(t, passage)
		assert.Zero(t, model.calls)
	})

	t.Run("ShouldExpandLongEnoughQueries", func(t *testing.T) {
		model := &stubModel{passage: "Channels synchronize goroutines by passing values."}
		expander := NewExpander(model)
		literal, passage := expander.Expand(ctx, "how do go channels synchronize goroutines")
		assert.Equal(t, "how do go channels synchronize goroutines", literal)
		assert.Equal(t, "Channels synchronize goroutines by passing values.", passage)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("ShouldServeNormalizedRepeatsFromCache", func(t *testing.T) {
		model := &stubModel{passage: "A cached passage about indexing."}
		expander := NewExpander(model)
		_, first := expander.Expand(ctx, "how does the index get built")
		_, second := expander.Expand(ctx, "  How DOES the   index get built ")
		assert.Equal(t, first, second)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("ShouldDegradeSilentlyOnProviderError", func(t *testing.T) {
		model := &stubModel{err: errors.New("provider down")}
		expander := NewExpander(model)
		literal, passage := expander.Expand(ctx, "a query long enough to expand")
		assert.Equal(t, "a query long enough to expand", literal)
		assert.Empty(t, passage)
	})

	t.Run("ShouldDegradeSilentlyOnTimeout", func(t *testing.T) {
		model := &stubModel{block: true}
		expander := NewExpander(model, WithTimeout(10*time.Millisecond))
		literal, passage := expander.Expand(ctx, "a query long enough to expand")
		assert.Equal(t, "a query long enough to expand", literal)
		assert.Empty(t, passage)
	})

	t.Run("ShouldNotCacheFailedExpansions", func(t *testing.T) {
		model := &stubModel{err: errors.New("flaky")}
		expander := NewExpander(model)
		expander.Expand(ctx, "a query long enough to expand")
		model.err = nil
		model.passage = "Recovered passage."
		_, passage := expander.Expand(ctx, "a query long enough to expand")
		assert.Equal(t, "Recovered passage.", passage)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("ShouldEvictOldestHalfWhenFull", func(t *testing.T) {
		model := &stubModel{passage: "A passage."}
		now := time.Unix(0, 0)
		expander := NewExpander(model,
			WithCacheSize(4),
			WithClock(func() time.Time {
				now = now.Add(time.Second)
				return now
			}),
		)
		for i := 0; i < 4; i++ {
			expander.Expand(ctx, fmt.Sprintf("unique padded query number %d", i))
		}
		require.Equal(t, 4, model.calls)

		// Fifth insert evicts the two oldest entries.
		expander.Expand(ctx, "unique padded query number 4")
		require.Equal(t, 5, model.calls)

		expander.Expand(ctx, "unique padded query number 0")
		assert.Equal(t, 6, model.calls, "oldest entry must have been evicted")
		expander.Expand(ctx, "unique padded query number 3")
		assert.Equal(t, 6, model.calls, "recent entry must survive eviction")
	})

	t.Run("ShouldClearCache", func(t *testing.T) {
		model := &stubModel{passage: "A passage."}
		expander := NewExpander(model)
		expander.Expand(ctx, "a query long enough to expand")
		expander.Clear()
		expander.Expand(ctx, "a query long enough to expand")
		assert.Equal(t, 2, model.calls)
	})
}
