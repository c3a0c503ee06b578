package extract

import "strings"

// Strategy is the tagged extraction behavior for a mime-type family.
type Strategy string

const (
	// StrategyRasterize renders each page to an image.
	StrategyRasterize Strategy = "rasterize"
	// StrategyConvertRasterize converts to PDF first, rasterizes, and falls
	// back to direct body-text extraction when conversion fails.
	StrategyConvertRasterize Strategy = "convert_rasterize"
	// StrategyTextSplit splits text into token-bounded spans.
	StrategyTextSplit Strategy = "text_split"
	// StrategyImagePassthrough emits the image unchanged.
	StrategyImagePassthrough Strategy = "image_passthrough"
)

type rule struct {
	pattern  string
	strategy Strategy
}

// registry maps mime-type patterns to strategies. Patterns are either exact
// or a type prefix ending in "/*". First match wins, so exact entries come
// before wildcards.
var registry = []rule{
	{"application/pdf", StrategyRasterize},
	{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", StrategyConvertRasterize},
	{"application/msword", StrategyConvertRasterize},
	{"application/vnd.oasis.opendocument.text", StrategyConvertRasterize},
	{"application/rtf", StrategyConvertRasterize},
	{"application/json", StrategyTextSplit},
	{"application/xml", StrategyTextSplit},
	{"image/*", StrategyImagePassthrough},
	{"text/*", StrategyTextSplit},
}

// Resolve returns the strategy for a mime type, or false when the type is
// unsupported. Parameters after ";" are ignored.
func Resolve(mimeType string) (Strategy, bool) {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	for _, r := range registry {
		if r.pattern == normalized {
			return r.strategy, true
		}
		if prefix, ok := strings.CutSuffix(r.pattern, "/*"); ok &&
			strings.HasPrefix(normalized, prefix+"/") {
			return r.strategy, true
		}
	}
	return "", false
}
