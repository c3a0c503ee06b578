package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedStatusTransition(t *testing.T) {
	t.Run("ShouldFollowIngestionLifecycle", func(t *testing.T) {
		status, err := StatusRaw.Transition(StatusQueued)
		require.NoError(t, err)
		status, err = status.Transition(StatusStored)
		require.NoError(t, err)
		assert.Equal(t, StatusStored, status)
	})

	t.Run("ShouldAllowFailureFromRawAndQueued", func(t *testing.T) {
		status, err := StatusRaw.Transition(StatusFailed)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)

		status, err = StatusQueued.Transition(StatusFailed)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)
	})

	t.Run("ShouldResetTerminalStatusesOnReprocess", func(t *testing.T) {
		status, err := StatusStored.Transition(StatusRaw)
		require.NoError(t, err)
		assert.Equal(t, StatusRaw, status)

		status, err = StatusFailed.Transition(StatusRaw)
		require.NoError(t, err)
		assert.Equal(t, StatusRaw, status)
	})

	t.Run("ShouldRejectSkippingQueued", func(t *testing.T) {
		status, err := StatusRaw.Transition(StatusStored)
		require.Error(t, err)
		assert.Equal(t, StatusRaw, status)
	})

	t.Run("ShouldRejectLeavingStoredExceptReprocess", func(t *testing.T) {
		_, err := StatusStored.Transition(StatusFailed)
		require.Error(t, err)
	})
}

func TestCollectionValidate(t *testing.T) {
	t.Run("ShouldDefaultDistanceToCosine", func(t *testing.T) {
		col := Collection{Name: "notes", Dimension: 1024, TextCapable: true}
		require.NoError(t, col.Validate())
		assert.Equal(t, DistanceCosine, col.Distance)
	})

	t.Run("ShouldRejectZeroDimension", func(t *testing.T) {
		col := Collection{Name: "notes", TextCapable: true}
		require.Error(t, col.Validate())
	})

	t.Run("ShouldRejectNoCapabilities", func(t *testing.T) {
		col := Collection{Name: "notes", Dimension: 8}
		require.Error(t, col.Validate())
	})

	t.Run("ShouldMatchModalities", func(t *testing.T) {
		col := Collection{
			Name:        "photos",
			Dimension:   8,
			Multimodal:  true,
			Modalities:  []Modality{ModalityPhoto},
			Distance:    DistanceCosine,
			TextCapable: false,
		}
		require.NoError(t, col.Validate())
		assert.True(t, col.AcceptsModality(ModalityPhoto))
		assert.False(t, col.AcceptsModality(ModalityText))
	})
}
