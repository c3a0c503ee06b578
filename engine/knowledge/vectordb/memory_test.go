package vectordb

import (
	"context"
	"testing"

	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	newCollection := func(t *testing.T, store Store, name string, dim int) {
		t.Helper()
		created, err := store.EnsureCollection(ctx, CollectionSpec{
			Name:      name,
			Dimension: dim,
			Distance:  knowledge.DistanceCosine,
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	t.Run("ShouldEnsureCollectionIdempotently", func(t *testing.T) {
		store := NewMemory()
		newCollection(t, store, "notes", 4)
		created, err := store.EnsureCollection(ctx, CollectionSpec{Name: "notes", Dimension: 4})
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("ShouldUpsertAndSearchByCosine", func(t *testing.T) {
		store := NewMemory()
		newCollection(t, store, "notes", 4)
		require.NoError(t, store.Upsert(ctx, "notes", []Point{
			{ID: "a", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"kind": "one"}},
			{ID: "b", Vector: []float32{0, 1, 0, 0}, Payload: map[string]any{"kind": "two"}},
		}))
		points, err := store.Search(ctx, "notes", []float32{1, 0, 0, 0}, nil, 1)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "a", points[0].ID)
		assert.InDelta(t, 1.0, points[0].Score, 1e-6)
	})

	t.Run("ShouldApplyEqualityAnyOfAndRangeFilters", func(t *testing.T) {
		store := NewMemory()
		newCollection(t, store, "notes", 2)
		require.NoError(t, store.Upsert(ctx, "notes", []Point{
			{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"tags": []string{"work"}, "size": 10}},
			{ID: "b", Vector: []float32{1, 0}, Payload: map[string]any{"tags": []string{"home"}, "size": 90}},
			{ID: "c", Vector: []float32{1, 0}, Payload: map[string]any{"tags": []string{"work"}, "size": 90}},
		}))

		points, err := store.Search(ctx, "notes", []float32{1, 0}, &Filter{Must: []Condition{
			MatchValue{Key: "tags", Value: "work"},
			Range{Key: "size", GTE: floatPtr(50)},
		}}, 10)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "c", points[0].ID)

		points, err = store.Search(ctx, "notes", []float32{1, 0}, &Filter{Must: []Condition{
			MatchAny{Key: "tags", Values: []any{"home", "work"}},
		}}, 10)
		require.NoError(t, err)
		assert.Len(t, points, 3)
	})

	t.Run("ShouldDeleteByID", func(t *testing.T) {
		store := NewMemory()
		newCollection(t, store, "notes", 2)
		require.NoError(t, store.Upsert(ctx, "notes", []Point{{ID: "a", Vector: []float32{1, 0}}}))
		require.NoError(t, store.Delete(ctx, "notes", []string{"a"}))
		points, err := store.Search(ctx, "notes", []float32{1, 0}, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("ShouldFailOnDimensionMismatch", func(t *testing.T) {
		store := NewMemory()
		newCollection(t, store, "notes", 4)
		err := store.Upsert(ctx, "notes", []Point{{ID: "bad", Vector: []float32{1, 0}}})
		require.Error(t, err)
		var storeError *StoreError
		require.ErrorAs(t, err, &storeError)
		assert.Equal(t, "upsert", storeError.Op)

		_, err = store.Search(ctx, "notes", []float32{1, 0}, nil, 1)
		require.ErrorAs(t, err, &storeError)
	})
}

func TestFilterAnd(t *testing.T) {
	t.Run("ShouldMergeConditionsAndSkipNils", func(t *testing.T) {
		merged := And(
			nil,
			&Filter{Must: []Condition{MatchValue{Key: "a", Value: 1}}},
			&Filter{Must: []Condition{MatchValue{Key: "b", Value: 2}}},
		)
		require.NotNil(t, merged)
		assert.Len(t, merged.Must, 2)
	})

	t.Run("ShouldReturnNilForAllNilInputs", func(t *testing.T) {
		assert.Nil(t, And(nil, nil, &Filter{}))
	})
}
