package embedder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnemora/mnemora/engine/knowledge"
)

func TestSelectModel(t *testing.T) {
	t.Run("ShouldCoverEveryInputCombination", func(t *testing.T) {
		cases := []struct {
			hasText, hasImage       bool
			textCapable, multimodal bool
			expected                Model
		}{
			{true, false, true, false, ModelText},
			{true, false, true, true, ModelText},
			{true, true, true, true, ModelText},
			{true, true, true, false, ModelText},
			{false, true, false, true, ModelMixed},
			{false, true, true, true, ModelMixed},
			{true, true, false, true, ModelMixed},
			{true, false, false, true, ModelNone},
			{false, true, true, false, ModelNone},
			{false, false, true, true, ModelNone},
			{false, false, false, false, ModelNone},
			{true, true, false, false, ModelNone},
		}
		for _, tc := range cases {
			name := fmt.Sprintf("text=%t_image=%t_cap=%t_multi=%t", tc.hasText, tc.hasImage, tc.textCapable, tc.multimodal)
			col := &knowledge.Collection{TextCapable: tc.textCapable, Multimodal: tc.multimodal}
			assert.Equal(t, tc.expected, SelectModel(tc.hasText, tc.hasImage, col), name)
		}
	})

	t.Run("ShouldPreferTextModelForMixedContentOnTextCapableCollection", func(t *testing.T) {
		col := &knowledge.Collection{TextCapable: true, Multimodal: true}
		assert.Equal(t, ModelText, SelectModel(true, true, col))
	})
}
