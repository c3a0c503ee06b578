package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// CharsPerToken approximates tokens as runes/4. This is deliberately an
// approximation instead of a tokenizer call: chunk budgets only need to be
// roughly right, and the ratio holds well for English prose.
const CharsPerToken = 4

const (
	// DefaultMaxTokens bounds semantic-search chunks. It controls retrieval
	// granularity, not provider limits.
	DefaultMaxTokens = 512
	// DefaultOverlapTokens is the trailing context carried between
	// consecutive chunks of one oversized text.
	DefaultOverlapTokens = 64
	// EmbeddingMaxTokens is the hard input-size ceiling of one embedding
	// call. Text is re-split against this budget right before embedding.
	EmbeddingMaxTokens = 8000
)

// Options configures one Split call. Split is a pure function of its inputs.
type Options struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultOptions returns the retrieval-granularity chunking budget.
func DefaultOptions() Options {
	return Options{MaxTokens: DefaultMaxTokens, OverlapTokens: DefaultOverlapTokens}
}

// EmbeddingOptions returns the embedding-call input budget. No overlap: the
// split here only guards the provider's input ceiling.
func EmbeddingOptions() Options {
	return Options{MaxTokens: EmbeddingMaxTokens}
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	count := utf8.RuneCountInString(text)
	if count == 0 {
		return 0
	}
	tokens := count / CharsPerToken
	if tokens == 0 {
		return 1
	}
	return tokens
}

var (
	paragraphPattern = regexp.MustCompile(`\n[ \t]*\n`)
	sentencePattern  = regexp.MustCompile(`[.!?]\s+`)
)

// span is a splittable unit tagged with whether it opens a new paragraph, so
// the accumulator knows which joiner to use.
type span struct {
	text      string
	paraStart bool
}

// Split breaks text into token-bounded chunks with sentence-aware overlap.
// Splitting is priority ordered: paragraphs first, then sentences, then
// greedy word accumulation. A paragraph that independently fits under
// MaxTokens is never split.
func Split(text string, opts Options) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if opts.MaxTokens <= 0 || EstimateTokens(trimmed) <= opts.MaxTokens {
		return []string{trimmed}
	}
	return accumulate(buildSpans(trimmed, opts.MaxTokens), opts)
}

func buildSpans(text string, maxTokens int) []span {
	spans := make([]span, 0, 8)
	for _, para := range paragraphPattern.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if EstimateTokens(para) <= maxTokens {
			spans = append(spans, span{text: para, paraStart: true})
			continue
		}
		first := true
		for _, sentence := range splitSentences(para) {
			if EstimateTokens(sentence) <= maxTokens {
				spans = append(spans, span{text: sentence, paraStart: first})
				first = false
				continue
			}
			for _, piece := range splitWords(sentence, maxTokens) {
				spans = append(spans, span{text: piece, paraStart: first})
				first = false
			}
		}
	}
	return spans
}

// splitSentences cuts on whitespace that follows a sentence terminator,
// keeping the terminator with the preceding sentence.
func splitSentences(text string) []string {
	bounds := sentencePattern.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}
	sentences := make([]string, 0, len(bounds)+1)
	prev := 0
	for _, b := range bounds {
		sentences = append(sentences, text[prev:b[0]+1])
		prev = b[1]
	}
	if prev < len(text) {
		sentences = append(sentences, text[prev:])
	}
	return sentences
}

// splitWords greedily packs words into pieces under the token budget. A
// single word longer than the budget becomes its own piece.
func splitWords(text string, maxTokens int) []string {
	words := strings.Fields(text)
	pieces := make([]string, 0, 2)
	var buf strings.Builder
	for _, word := range words {
		if buf.Len() > 0 && EstimateTokens(buf.String()+" "+word) > maxTokens {
			pieces = append(pieces, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(word)
	}
	if buf.Len() > 0 {
		pieces = append(pieces, buf.String())
	}
	return pieces
}

func accumulate(spans []span, opts Options) []string {
	chunks := make([]string, 0, len(spans))
	buf := ""
	for _, sp := range spans {
		if buf == "" {
			buf = sp.text
			continue
		}
		joiner := " "
		if sp.paraStart {
			joiner = "\n\n"
		}
		if EstimateTokens(buf+joiner+sp.text) <= opts.MaxTokens {
			buf += joiner + sp.text
			continue
		}
		flushed := strings.TrimSpace(buf)
		if flushed != "" {
			chunks = append(chunks, flushed)
		}
		seed := overlapSeed(flushed, opts)
		if seed != "" && EstimateTokens(seed+joiner+sp.text) <= opts.MaxTokens {
			buf = seed + joiner + sp.text
		} else {
			buf = sp.text
		}
	}
	if final := strings.TrimSpace(buf); final != "" {
		chunks = append(chunks, final)
	}
	return chunks
}

// overlapSeed returns the trailing sentences of a flushed chunk to carry into
// the next one. The seed is cut at the last sentence boundary inside the
// overlap window; with no clean boundary there, no overlap is carried.
func overlapSeed(flushed string, opts Options) string {
	if opts.OverlapTokens <= 0 || flushed == "" {
		return ""
	}
	window := opts.OverlapTokens * CharsPerToken
	if window > len(flushed) {
		window = len(flushed)
	}
	tail := flushed[len(flushed)-window:]
	cut := -1
	for _, boundary := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(tail, boundary); idx > cut {
			cut = idx
		}
	}
	if cut < 0 {
		return ""
	}
	return strings.TrimSpace(tail[cut+1:])
}
