package blob

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	newStore := func(t *testing.T) *Store {
		t.Helper()
		store, err := NewStore(afero.NewMemMapFs(), "/blobs")
		require.NoError(t, err)
		return store
	}

	t.Run("ShouldUseChunkIDAsStemForSingleFileChunks", func(t *testing.T) {
		store := newStore(t)
		name, err := store.Write("chunk123", -1, "image/png", []byte{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, "chunk123.png", name)

		data, err := store.Read(name)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, data)
	})

	t.Run("ShouldSuffixOrdinalsForMultiPartChunks", func(t *testing.T) {
		store := newStore(t)
		first, err := store.Write("chunk123", 0, "text/plain", []byte("hello"))
		require.NoError(t, err)
		second, err := store.Write("chunk123", 1, "image/jpeg", []byte{9})
		require.NoError(t, err)
		assert.Equal(t, "chunk123_0.txt", first)
		assert.Equal(t, "chunk123_1.jpg", second)
	})

	t.Run("ShouldIgnoreMissingFilesOnRemove", func(t *testing.T) {
		store := newStore(t)
		name, err := store.Write("chunk9", -1, "application/pdf", []byte("pdf"))
		require.NoError(t, err)
		require.NoError(t, store.Remove([]string{name, "never-written.bin"}))
		_, err = store.Read(name)
		assert.Error(t, err)
	})

	t.Run("ShouldRejectEmptyRoot", func(t *testing.T) {
		_, err := NewStore(afero.NewMemMapFs(), "  ")
		require.Error(t, err)
	})
}
