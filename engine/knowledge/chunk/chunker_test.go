package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Run("ShouldReturnNothingForEmptyInput", func(t *testing.T) {
		assert.Empty(t, Split("", DefaultOptions()))
		assert.Empty(t, Split("   \n\t  ", DefaultOptions()))
	})

	t.Run("ShouldReturnSingleChunkWhenTextFits", func(t *testing.T) {
		text := "  A short note about nothing in particular.  "
		chunks := Split(text, DefaultOptions())
		require.Len(t, chunks, 1)
		assert.Equal(t, strings.TrimSpace(text), chunks[0])
	})

	t.Run("ShouldNeverSplitInsideFittingParagraph", func(t *testing.T) {
		para1 := strings.Repeat("alpha bravo charlie delta. ", 4)
		para2 := strings.Repeat("echo foxtrot golf hotel. ", 4)
		para3 := strings.Repeat("india juliet kilo lima. ", 4)
		text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2) + "\n\n" + strings.TrimSpace(para3)
		opts := Options{MaxTokens: 40, OverlapTokens: 0}
		require.LessOrEqual(t, EstimateTokens(strings.TrimSpace(para1)), opts.MaxTokens)

		chunks := Split(text, opts)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			for _, para := range []string{strings.TrimSpace(para1), strings.TrimSpace(para2), strings.TrimSpace(para3)} {
				if strings.Contains(chunk, para[:20]) {
					assert.Contains(t, chunk, para, "paragraph must stay whole inside a chunk")
				}
			}
		}
	})

	t.Run("ShouldCarrySentenceBoundedOverlap", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 40; i++ {
			b.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
		}
		opts := Options{MaxTokens: 50, OverlapTokens: 20}
		chunks := Split(b.String(), opts)
		require.Greater(t, len(chunks), 1)
		for i := 1; i < len(chunks); i++ {
			prev, cur := chunks[i-1], chunks[i]
			head := cur
			if idx := strings.Index(cur, "."); idx >= 0 {
				head = cur[:idx+1]
			}
			assert.True(t, strings.HasSuffix(prev, head),
				"chunk %d must start with the trailing sentence of chunk %d", i, i-1)
			assert.LessOrEqual(t, EstimateTokens(head), opts.OverlapTokens)
		}
	})

	t.Run("ShouldStartEmptyWhenNoBoundaryInWindow", func(t *testing.T) {
		// One giant boundary-free sentence forces word accumulation and
		// leaves no sentence terminator inside the overlap window.
		text := strings.Repeat("wordswithoutend ", 400)
		opts := Options{MaxTokens: 50, OverlapTokens: 10}
		chunks := Split(text, opts)
		require.Greater(t, len(chunks), 1)
		for i := 1; i < len(chunks); i++ {
			assert.False(t, strings.HasPrefix(chunks[i], chunks[i-1][len(chunks[i-1])-10:]),
				"no overlap should be carried without a sentence boundary")
		}
	})

	t.Run("ShouldSplitOversizedSentencesByWords", func(t *testing.T) {
		text := strings.Repeat("alpha ", 300) // no terminators at all
		opts := Options{MaxTokens: 30, OverlapTokens: 0}
		chunks := Split(text, opts)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, EstimateTokens(chunk), opts.MaxTokens)
			assert.NotContains(t, chunk, "  ")
		}
	})

	t.Run("ShouldFlushFinalPartialBuffer", func(t *testing.T) {
		text := strings.Repeat("One two three four five six seven eight nine ten. ", 20) + "Tail fragment"
		chunks := Split(text, Options{MaxTokens: 40, OverlapTokens: 0})
		require.NotEmpty(t, chunks)
		assert.Contains(t, chunks[len(chunks)-1], "Tail fragment")
	})
}

func TestEstimateTokens(t *testing.T) {
	t.Run("ShouldUseFourCharsPerToken", func(t *testing.T) {
		assert.Equal(t, 0, EstimateTokens(""))
		assert.Equal(t, 1, EstimateTokens("abc"))
		assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
	})
}

func TestSplitSentences(t *testing.T) {
	t.Run("ShouldKeepTerminatorsWithSentences", func(t *testing.T) {
		sentences := splitSentences("First one. Second one! Third one? Fourth")
		require.Len(t, sentences, 4)
		assert.Equal(t, "First one.", sentences[0])
		assert.Equal(t, "Second one!", sentences[1])
		assert.Equal(t, "Third one?", sentences[2])
		assert.Equal(t, "Fourth", sentences[3])
	})
}
