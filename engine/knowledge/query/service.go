package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/engine/knowledge/embedder"
	"github.com/mnemora/mnemora/engine/knowledge/store"
	"github.com/mnemora/mnemora/engine/knowledge/vectordb"
	"github.com/mnemora/mnemora/pkg/logger"
)

// Aggregate selects how one item's chunk scores combine into its rank score.
type Aggregate string

const (
	// AggregateMax ranks an item by its best-matching chunk.
	AggregateMax Aggregate = "max"
	// AggregateSum ranks an item by the sum of its matching chunks, favoring
	// items with broad coverage of the query.
	AggregateSum Aggregate = "sum"
)

const defaultLimit = 10

// Request is one semantic search call.
type Request struct {
	Query             string
	AllowedModalities []knowledge.Modality
	Limit             int
	MinTextScore      float64
	MinMixedScore     float64
	// AccessFilter is built by the access-control collaborator and is ANDed
	// into every vector search so inaccessible items never surface, not even
	// through ranking. Nil means unrestricted.
	AccessFilter *vectordb.Filter
}

// ScoredChunk is one matching chunk with its similarity score.
type ScoredChunk struct {
	Chunk knowledge.Chunk
	Score float64
}

// ItemResult groups an item's matching chunks under one aggregate score.
type ItemResult struct {
	Item   knowledge.SourceItem
	Score  float64
	Chunks []ScoredChunk
}

// Service runs the two-path query pipeline: text and mixed query embeddings
// fan out across collections, survivors merge by point id, and the relational
// store hydrates authoritative content.
type Service struct {
	embedder    *embedder.Service
	vectors     vectordb.Store
	repo        store.Repository
	collections []knowledge.Collection
	expander    *Expander
	aggregate   Aggregate
}

// Option configures a Service.
type Option func(*Service)

// WithExpander enables HyDE query expansion.
func WithExpander(expander *Expander) Option {
	return func(s *Service) { s.expander = expander }
}

// WithAggregate overrides the chunk-score aggregation policy.
func WithAggregate(policy Aggregate) Option {
	return func(s *Service) { s.aggregate = policy }
}

// NewService builds the query pipeline over the given collaborators.
func NewService(
	embedService *embedder.Service,
	vectors vectordb.Store,
	repo store.Repository,
	collections []knowledge.Collection,
	opts ...Option,
) (*Service, error) {
	if embedService == nil {
		return nil, errors.New("query: embedder is required")
	}
	if vectors == nil {
		return nil, errors.New("query: vector store is required")
	}
	if repo == nil {
		return nil, errors.New("query: repository is required")
	}
	if len(collections) == 0 {
		return nil, errors.New("query: at least one collection is required")
	}
	s := &Service{
		embedder:    embedService,
		vectors:     vectors,
		repo:        repo,
		collections: collections,
		aggregate:   AggregateMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	switch s.aggregate {
	case AggregateMax, AggregateSum:
	default:
		return nil, fmt.Errorf("query: unknown aggregate policy %q", s.aggregate)
	}
	return s, nil
}

// Search runs the full pipeline. Partial degradation (expansion failure, one
// path's embedding failing, one collection's search failing) reduces recall
// but never returns an error; only configuration defects propagate.
func (s *Service) Search(ctx context.Context, req Request) ([]ItemResult, error) {
	start := time.Now()
	defer func() { knowledge.RecordQueryLatency(ctx, time.Since(start)) }()
	log := logger.FromContext(ctx)

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	text := req.Query
	if s.expander != nil {
		literal, passage := s.expander.Expand(ctx, req.Query)
		text = literal
		if passage != "" {
			text = literal + "\n\n" + passage
		}
	}

	filter := vectordb.And(req.AccessFilter, modalityFilter(req.AllowedModalities))
	merged := make(map[string]candidate)

	textCols := s.targetCollections(req.AllowedModalities, true)
	if len(textCols) > 0 {
		if vector, err := s.embedder.EmbedQueryText(ctx, text); err != nil {
			log.Warn("text query embedding failed", "error", err)
		} else {
			s.searchPath(ctx, textCols, vector, filter, limit, req.MinTextScore, merged)
		}
	}

	mixedCols := s.targetCollections(req.AllowedModalities, false)
	if len(mixedCols) > 0 && s.embedder.HasMixed() {
		if vector, err := s.embedder.EmbedQueryMixed(ctx, text); err != nil {
			log.Warn("mixed query embedding failed", "error", err)
		} else {
			s.searchPath(ctx, mixedCols, vector, filter, limit, req.MinMixedScore, merged)
		}
	}

	if len(merged) == 0 {
		return nil, nil
	}
	results, err := s.hydrate(ctx, merged)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// targetCollections selects the collections one path searches. The text path
// is restricted to text-capable collections; the mixed path covers every
// collection serving the allowed modalities.
func (s *Service) targetCollections(allowed []knowledge.Modality, textOnly bool) []*knowledge.Collection {
	targets := make([]*knowledge.Collection, 0, len(s.collections))
	for i := range s.collections {
		col := &s.collections[i]
		if textOnly && !col.TextCapable {
			continue
		}
		if len(allowed) > 0 && !acceptsAny(col, allowed) {
			continue
		}
		targets = append(targets, col)
	}
	return targets
}

func acceptsAny(col *knowledge.Collection, modalities []knowledge.Modality) bool {
	for _, m := range modalities {
		if col.AcceptsModality(m) {
			return true
		}
	}
	return false
}

// candidate is one surviving point: its best score across paths plus the
// chunk reference carried in the point payload.
type candidate struct {
	score   float64
	chunkID core.ID
}

// searchPath fans one query vector out across collections, keeping survivors
// above the path threshold. Merging by point id keeps the best score when both
// paths surface the same point.
func (s *Service) searchPath(
	ctx context.Context,
	cols []*knowledge.Collection,
	vector []float32,
	filter *vectordb.Filter,
	limit int,
	minScore float64,
	merged map[string]candidate,
) {
	log := logger.FromContext(ctx)
	for _, col := range cols {
		hits, err := s.vectors.Search(ctx, col.Name, vector, filter, limit)
		if err != nil {
			log.Warn("collection search degraded", "collection", col.Name, "error", err)
			continue
		}
		for _, hit := range hits {
			if hit.Score < minScore {
				continue
			}
			chunkID, ok := hit.Payload["chunk_id"].(string)
			if !ok || chunkID == "" {
				log.Warn("dropping point without chunk reference", "point_id", hit.ID, "collection", col.Name)
				continue
			}
			if best, seen := merged[hit.ID]; !seen || hit.Score > best.score {
				merged[hit.ID] = candidate{score: hit.Score, chunkID: core.ID(chunkID)}
			}
		}
	}
}

// hydrate resolves surviving points to relational rows. The vector store holds
// only vectors and display payload; content always comes from the repository.
func (s *Service) hydrate(ctx context.Context, merged map[string]candidate) ([]ItemResult, error) {
	chunkIDs := make([]core.ID, 0, len(merged))
	scoreByChunk := make(map[core.ID]float64, len(merged))
	for _, cand := range merged {
		chunkIDs = append(chunkIDs, cand.chunkID)
		if best, ok := scoreByChunk[cand.chunkID]; !ok || cand.score > best {
			scoreByChunk[cand.chunkID] = cand.score
		}
	}
	chunks, err := s.repo.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("query: hydrate chunks: %w", err)
	}

	grouped := make(map[core.ID][]ScoredChunk)
	for i := range chunks {
		grouped[chunks[i].ItemID] = append(grouped[chunks[i].ItemID], ScoredChunk{
			Chunk: chunks[i],
			Score: scoreByChunk[chunks[i].ID],
		})
	}
	itemIDs := make([]core.ID, 0, len(grouped))
	for id := range grouped {
		itemIDs = append(itemIDs, id)
	}
	items, err := s.repo.GetItems(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("query: hydrate items: %w", err)
	}

	results := make([]ItemResult, 0, len(items))
	for i := range items {
		scored := grouped[items[i].ID]
		sort.Slice(scored, func(a, b int) bool {
			if scored[a].Score == scored[b].Score {
				return scored[a].Chunk.ID < scored[b].Chunk.ID
			}
			return scored[a].Score > scored[b].Score
		})
		results = append(results, ItemResult{
			Item:   items[i],
			Score:  s.aggregateScore(scored),
			Chunks: scored,
		})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score == results[b].Score {
			return results[a].Item.ID < results[b].Item.ID
		}
		return results[a].Score > results[b].Score
	})
	return results, nil
}

func (s *Service) aggregateScore(scored []ScoredChunk) float64 {
	var total float64
	for _, sc := range scored {
		switch s.aggregate {
		case AggregateSum:
			total += sc.Score
		default:
			if sc.Score > total {
				total = sc.Score
			}
		}
	}
	return total
}

// modalityFilter restricts search to the allowed modalities. Nil when the
// caller allows everything.
func modalityFilter(allowed []knowledge.Modality) *vectordb.Filter {
	if len(allowed) == 0 {
		return nil
	}
	values := make([]any, 0, len(allowed))
	for _, m := range allowed {
		values = append(values, string(m))
	}
	return &vectordb.Filter{Must: []vectordb.Condition{
		vectordb.MatchAny{Key: "modality", Values: values},
	}}
}
