package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilter(t *testing.T) {
	t.Run("ShouldCompileAllPrimitives", func(t *testing.T) {
		gte, lte := 10.0, 20.0
		compiled := compileFilter(&Filter{Must: []Condition{
			MatchValue{Key: "modality", Value: "doc"},
			MatchAny{Key: "tags", Values: []any{"work", "home"}},
			Range{Key: "size", GTE: &gte, LTE: &lte},
		}})
		require.NotNil(t, compiled)
		must, ok := compiled["must"].([]any)
		require.True(t, ok)
		require.Len(t, must, 3)

		eq := must[0].(map[string]any)
		assert.Equal(t, "modality", eq["key"])
		assert.Equal(t, map[string]any{"value": "doc"}, eq["match"])

		anyOf := must[1].(map[string]any)
		assert.Equal(t, map[string]any{"any": []any{"work", "home"}}, anyOf["match"])

		rng := must[2].(map[string]any)
		assert.Equal(t, map[string]any{"gte": 10.0, "lte": 20.0}, rng["range"])
	})

	t.Run("ShouldReturnNilForEmptyFilter", func(t *testing.T) {
		assert.Nil(t, compileFilter(nil))
		assert.Nil(t, compileFilter(&Filter{}))
	})
}

func TestQdrantStore(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldCreateCollectionAndTagIndexOnNotFound", func(t *testing.T) {
		var createdCollection, createdIndex bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/collections/notes":
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":{"error":"not found"}}`))
			case r.Method == http.MethodPut && r.URL.Path == "/collections/notes":
				createdCollection = true
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				vectors := body["vectors"].(map[string]any)
				assert.Equal(t, float64(4), vectors["size"])
				assert.Equal(t, "Cosine", vectors["distance"])
				_, _ = w.Write([]byte(`{"result":true}`))
			case r.Method == http.MethodPut && r.URL.Path == "/collections/notes/index":
				createdIndex = true
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "tags", body["field_name"])
				assert.Equal(t, "keyword", body["field_schema"])
				_, _ = w.Write([]byte(`{"result":true}`))
			default:
				t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			}
		}))
		defer server.Close()

		store, err := NewQdrant(&QdrantConfig{Endpoint: server.URL})
		require.NoError(t, err)
		created, err := store.EnsureCollection(ctx, CollectionSpec{
			Name:      "notes",
			Dimension: 4,
			Distance:  knowledge.DistanceCosine,
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, createdCollection)
		assert.True(t, createdIndex)
	})

	t.Run("ShouldSkipCreateWhenCollectionExists", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
		}))
		defer server.Close()

		store, err := NewQdrant(&QdrantConfig{Endpoint: server.URL})
		require.NoError(t, err)
		created, err := store.EnsureCollection(ctx, CollectionSpec{Name: "notes", Dimension: 4})
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("ShouldReturnTypedErrorOnSearchFailure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
		}))
		defer server.Close()

		store, err := NewQdrant(&QdrantConfig{Endpoint: server.URL})
		require.NoError(t, err)
		_, err = store.Search(ctx, "notes", []float32{1, 0}, nil, 5)
		var storeError *StoreError
		require.ErrorAs(t, err, &storeError)
		assert.Equal(t, "search", storeError.Op)
		assert.Equal(t, "notes", storeError.Collection)
	})

	t.Run("ShouldParseSearchResults", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/collections/notes/points/search", r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotNil(t, body["filter"])
			_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.9,"payload":{"chunk_id":"c1"}}]}`))
		}))
		defer server.Close()

		store, err := NewQdrant(&QdrantConfig{Endpoint: server.URL})
		require.NoError(t, err)
		points, err := store.Search(ctx, "notes", []float32{1, 0}, &Filter{
			Must: []Condition{MatchValue{Key: "modality", Value: "doc"}},
		}, 5)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "p1", points[0].ID)
		assert.InDelta(t, 0.9, points[0].Score, 1e-9)
		assert.Equal(t, "c1", points[0].Payload["chunk_id"])
	})
}
