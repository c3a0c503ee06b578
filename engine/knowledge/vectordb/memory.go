package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
)

// memoryStore is an in-process Store used by tests and local runs. It mirrors
// the external engine's scoring: higher is better for every metric, with
// euclidean distance folded into 1/(1+d).
type memoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	spec   CollectionSpec
	points map[string]Point
}

// NewMemory builds an empty in-memory vector store.
func NewMemory() Store {
	return &memoryStore{collections: make(map[string]*memoryCollection)}
}

func (m *memoryStore) EnsureCollection(_ context.Context, spec CollectionSpec) (bool, error) {
	if spec.Dimension <= 0 {
		return false, storeErr("ensure_collection", spec.Name, errors.New("dimension must be greater than zero"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[spec.Name]; ok {
		return false, nil
	}
	if spec.Distance == "" {
		spec.Distance = knowledge.DistanceCosine
	}
	m.collections[spec.Name] = &memoryCollection{spec: spec, points: make(map[string]Point)}
	return true, nil
}

func (m *memoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return storeErr("upsert", collection, errors.New("collection does not exist"))
	}
	for i := range points {
		if len(points[i].Vector) != col.spec.Dimension {
			return storeErr("upsert", collection, fmt.Errorf(
				"point %q dimension %d does not match collection dimension %d",
				points[i].ID, len(points[i].Vector), col.spec.Dimension,
			))
		}
	}
	for i := range points {
		point := points[i]
		point.Vector = core.CloneSlice(point.Vector)
		point.Payload = core.CloneMap(point.Payload)
		col.points[point.ID] = point
	}
	return nil
}

func (m *memoryStore) Search(
	_ context.Context,
	collection string,
	vector []float32,
	filter *Filter,
	limit int,
) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, storeErr("search", collection, errors.New("collection does not exist"))
	}
	if len(vector) != col.spec.Dimension {
		return nil, storeErr("search", collection, fmt.Errorf(
			"query dimension %d does not match collection dimension %d", len(vector), col.spec.Dimension,
		))
	}
	if limit <= 0 {
		limit = qdrantDefaultLimit
	}
	results := make([]ScoredPoint, 0, len(col.points))
	for _, point := range col.points {
		if !matchesFilter(point.Payload, filter) {
			continue
		}
		results = append(results, ScoredPoint{
			ID:      point.ID,
			Score:   score(col.spec.Distance, vector, point.Vector),
			Payload: core.CloneMap(point.Payload),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memoryStore) Delete(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return storeErr("delete", collection, errors.New("collection does not exist"))
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

func (m *memoryStore) Close(context.Context) error {
	return nil
}

func matchesFilter(payload map[string]any, filter *Filter) bool {
	if filter == nil {
		return true
	}
	for _, cond := range filter.Must {
		if !matchesCondition(payload, cond) {
			return false
		}
	}
	return true
}

func matchesCondition(payload map[string]any, cond Condition) bool {
	switch c := cond.(type) {
	case MatchValue:
		return valueMatches(payload[c.Key], c.Value)
	case MatchAny:
		for _, candidate := range c.Values {
			if valueMatches(payload[c.Key], candidate) {
				return true
			}
		}
		return false
	case Range:
		num, ok := asFloat(payload[c.Key])
		if !ok {
			return false
		}
		if c.GTE != nil && num < *c.GTE {
			return false
		}
		if c.LTE != nil && num > *c.LTE {
			return false
		}
		return true
	default:
		return false
	}
}

// valueMatches follows keyword-index semantics: a list field matches when any
// element equals the candidate.
func valueMatches(field, candidate any) bool {
	switch v := field.(type) {
	case []string:
		for _, el := range v {
			if el == fmt.Sprint(candidate) {
				return true
			}
		}
		return false
	case []any:
		for _, el := range v {
			if fmt.Sprint(el) == fmt.Sprint(candidate) {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(field) == fmt.Sprint(candidate)
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func score(distance knowledge.Distance, query, point []float32) float64 {
	switch distance {
	case knowledge.DistanceDot:
		return dot(query, point)
	case knowledge.DistanceEuclidean:
		var sum float64
		for i := range query {
			d := float64(query[i]) - float64(point[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		qn := math.Sqrt(dot(query, query))
		pn := math.Sqrt(dot(point, point))
		if qn == 0 || pn == 0 {
			return 0
		}
		return dot(query, point) / (qn * pn)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
