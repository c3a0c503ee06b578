package embedder

import "github.com/mnemora/mnemora/engine/knowledge"

// Model identifies which embedding capability handles a piece of content.
type Model string

const (
	// ModelText is the text-only embedding capability.
	ModelText Model = "text"
	// ModelMixed is the multimodal embedding capability.
	ModelMixed Model = "mixed"
	// ModelNone means no capability applies; callers must treat it as a
	// configuration defect, never fall back to an arbitrary default.
	ModelNone Model = ""
)

// SelectModel is the pure, total model-selection policy: text content on a
// text-capable collection uses the text model, image content on a multimodal
// collection uses the mixed model, anything else selects nothing.
func SelectModel(hasText, hasImage bool, col *knowledge.Collection) Model {
	switch {
	case hasText && col.TextCapable:
		return ModelText
	case hasImage && col.Multimodal:
		return ModelMixed
	default:
		return ModelNone
	}
}
