package extract

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Summarizer produces a short summary plus derived tags for a long document.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (summary string, tags []string, err error)
}

const summarySystemPrompt = "You summarize documents for a search index. " +
	"Reply with a 2-3 sentence summary of the document, then a final line " +
	"formatted exactly as 'Tags: tag1, tag2, tag3' with up to five short " +
	"topical tags."

const (
	summaryTemperature = 0.2
	summaryMaxTokens   = 200
	// summaryInputRunes caps how much of the document is sent to the model.
	summaryInputRunes = 24000
)

// LLMSummarizer generates summaries through a chat model.
type LLMSummarizer struct {
	model llms.Model
}

// NewLLMSummarizer wraps a langchaingo model.
func NewLLMSummarizer(model llms.Model) *LLMSummarizer {
	return &LLMSummarizer{model: model}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (string, []string, error) {
	input := text
	if runes := []rune(input); len(runes) > summaryInputRunes {
		input = string(runes[:summaryInputRunes])
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}
	response, err := s.model.GenerateContent(ctx, messages,
		llms.WithTemperature(summaryTemperature),
		llms.WithMaxTokens(summaryMaxTokens),
	)
	if err != nil {
		return "", nil, err
	}
	if len(response.Choices) == 0 {
		return "", nil, nil
	}
	summary, tags := parseSummary(response.Choices[0].Content)
	return summary, tags, nil
}

func parseSummary(raw string) (string, []string) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	var tags []string
	var body []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "Tags:"); ok {
			for _, tag := range strings.Split(rest, ",") {
				if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
					tags = append(tags, tag)
				}
			}
			continue
		}
		if trimmed != "" {
			body = append(body, trimmed)
		}
	}
	return strings.Join(body, " "), tags
}
