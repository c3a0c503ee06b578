package vectordb

import (
	"context"
	"fmt"

	"github.com/mnemora/mnemora/engine/knowledge"
)

// CollectionSpec describes a vector-store partition to ensure.
type CollectionSpec struct {
	Name      string
	Dimension int
	Distance  knowledge.Distance
	OnDisk    bool
	Shards    uint
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is one similarity search hit. Payload carries display metadata
// only; authoritative content always lives in the relational store.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Condition is one filter primitive over payload fields.
type Condition interface {
	isCondition()
}

// MatchValue requires payload[Key] == Value.
type MatchValue struct {
	Key   string
	Value any
}

// MatchAny requires payload[Key] to equal (or contain) any of Values.
type MatchAny struct {
	Key    string
	Values []any
}

// Range requires a numeric payload field inside [GTE, LTE]; nil bounds are
// open.
type Range struct {
	Key string
	GTE *float64
	LTE *float64
}

func (MatchValue) isCondition() {}
func (MatchAny) isCondition()   {}
func (Range) isCondition()      {}

// Filter is an AND-composition of conditions.
type Filter struct {
	Must []Condition
}

// And merges filters into one conjunction. Nil filters are skipped; an
// all-nil input yields nil (unrestricted).
func And(filters ...*Filter) *Filter {
	var merged *Filter
	for _, f := range filters {
		if f == nil || len(f.Must) == 0 {
			continue
		}
		if merged == nil {
			merged = &Filter{}
		}
		merged.Must = append(merged.Must, f.Must...)
	}
	return merged
}

// Store is the contract the core needs from the external vector engine. The
// adapter performs no retries; retry policy belongs to the orchestrator and
// task layers.
type Store interface {
	// EnsureCollection is idempotent: it reads first and creates only on
	// not-found, reporting whether a create happened.
	EnsureCollection(ctx context.Context, spec CollectionSpec) (bool, error)
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Close(ctx context.Context) error
}

// StoreError is the typed failure surfaced by every adapter call.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vectordb: %s on %q failed: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Collection: collection, Err: err}
}
