package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/engine/knowledge/blob"
	"github.com/mnemora/mnemora/engine/knowledge/embedder"
	"github.com/mnemora/mnemora/engine/knowledge/extract"
	"github.com/mnemora/mnemora/engine/knowledge/store"
	"github.com/mnemora/mnemora/engine/knowledge/vectordb"
	"github.com/mnemora/mnemora/pkg/logger"
)

// Input is one unit of raw content submitted for ingestion.
type Input struct {
	Content  []byte
	MimeType string
	Modality knowledge.Modality
	Tags     []string
	FilePath string
	URL      string
}

// Result reports the outcome for one input. Err is recorded per item; a
// failing item never fails its batch siblings.
type Result struct {
	Item    *knowledge.SourceItem
	Chunks  int
	Deduped bool
	Err     error
}

const (
	defaultRetryMax  = 3
	defaultRetryBase = 500 * time.Millisecond
)

// Orchestrator drives the ingestion pipeline: dedup gate, extraction,
// embedding, relational persistence and vector upsert, with all embed status
// changes funneled through the status transition function.
type Orchestrator struct {
	repo        store.Repository
	vectors     vectordb.Store
	extractor   *extract.Extractor
	embedder    *embedder.Service
	blobs       *blob.Store
	collections []knowledge.Collection
	retryMax    uint64
	retryBase   time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetry tunes the embedding-call retry policy.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryMax = maxRetries
		o.retryBase = base
	}
}

// WithBlobStore enables blob cleanup during reprocessing.
func WithBlobStore(blobs *blob.Store) Option {
	return func(o *Orchestrator) { o.blobs = blobs }
}

// New builds an orchestrator over the given collaborators.
func New(
	repo store.Repository,
	vectors vectordb.Store,
	extractor *extract.Extractor,
	embedService *embedder.Service,
	collections []knowledge.Collection,
	opts ...Option,
) (*Orchestrator, error) {
	if repo == nil {
		return nil, errors.New("ingest: repository is required")
	}
	if vectors == nil {
		return nil, errors.New("ingest: vector store is required")
	}
	if extractor == nil {
		return nil, errors.New("ingest: extractor is required")
	}
	if embedService == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if len(collections) == 0 {
		return nil, errors.New("ingest: at least one collection is required")
	}
	o := &Orchestrator{
		repo:        repo,
		vectors:     vectors,
		extractor:   extractor,
		embedder:    embedService,
		collections: collections,
		retryMax:    defaultRetryMax,
		retryBase:   defaultRetryBase,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// EnsureCollections validates every configured collection and ensures it
// exists in the vector store. Called once at startup.
func (o *Orchestrator) EnsureCollections(ctx context.Context) error {
	log := logger.FromContext(ctx)
	for i := range o.collections {
		col := &o.collections[i]
		if err := col.Validate(); err != nil {
			return err
		}
		created, err := o.vectors.EnsureCollection(ctx, vectordb.CollectionSpec{
			Name:      col.Name,
			Dimension: col.Dimension,
			Distance:  col.Distance,
			OnDisk:    col.OnDisk,
			Shards:    col.Shards,
		})
		if err != nil {
			return fmt.Errorf("ingest: ensure collection %q: %w", col.Name, err)
		}
		if created {
			log.Info("created vector collection", "collection", col.Name, "dimension", col.Dimension)
		}
	}
	return nil
}

// Process runs the pipeline for a batch of inputs. Items are processed
// sequentially and independently; one item's failure is recorded on its result
// and never aborts the batch.
func (o *Orchestrator) Process(ctx context.Context, inputs []Input) []Result {
	results := make([]Result, len(inputs))
	for i := range inputs {
		results[i] = o.processOne(ctx, &inputs[i])
	}
	return results
}

func (o *Orchestrator) processOne(ctx context.Context, input *Input) Result {
	log := logger.FromContext(ctx)
	start := time.Now()
	defer func() {
		knowledge.RecordIngestDuration(ctx, input.Modality, time.Since(start))
	}()

	hash := core.ContentHash(input.Content)
	if existing, ok := o.dedupProbe(ctx, input, hash); ok {
		return Result{Item: existing, Deduped: true}
	}

	col := o.routeCollection(input.Modality)
	if col == nil {
		return Result{Err: knowledge.NewConfigError("no collection accepts modality %q", input.Modality)}
	}

	item := &knowledge.SourceItem{
		ID:          core.MustNewID(),
		Modality:    input.Modality,
		ContentHash: hash,
		MimeType:    input.MimeType,
		Tags:        core.CloneSlice(input.Tags),
		Status:      knowledge.StatusRaw,
		Size:        int64(len(input.Content)),
		FilePath:    input.FilePath,
		URL:         input.URL,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := o.repo.CreateItem(ctx, item); err != nil {
		if errors.Is(err, knowledge.ErrAlreadyExists) {
			// Lost a concurrent race; the unique constraint folds it into
			// the dedup outcome.
			if existing, ok := o.dedupProbe(ctx, input, hash); ok {
				return Result{Item: existing, Deduped: true}
			}
			return Result{Err: err}
		}
		return Result{Err: fmt.Errorf("ingest: create item: %w", err)}
	}

	data, err := o.extractor.Extract(ctx, input.MimeType, input.Modality, input.Content)
	if err != nil {
		return o.failItem(ctx, item, err)
	}
	if len(data) == 0 {
		log.Warn("extraction produced no content", "item_id", item.ID, "mime_type", input.MimeType)
		return o.failItem(ctx, item, &knowledge.ExtractionError{
			MimeType: input.MimeType,
			Err:      errors.New("no extractable content"),
		})
	}

	chunks, err := o.embedWithRetry(ctx, item, data, col)
	if err != nil {
		return o.failItem(ctx, item, err)
	}
	if err := o.repo.SaveChunks(ctx, chunks); err != nil {
		return o.failItem(ctx, item, fmt.Errorf("ingest: save chunks: %w", err))
	}
	if err := o.transition(ctx, item, knowledge.StatusQueued); err != nil {
		return Result{Item: item, Err: err}
	}
	knowledge.RecordIngestChunks(ctx, input.Modality, len(chunks))

	if err := o.upsertChunks(ctx, item, chunks, col); err != nil {
		log.Warn("vector upsert failed", "item_id", item.ID, "collection", col.Name, "error", err)
		return o.failItem(ctx, item, err)
	}
	if err := o.transition(ctx, item, knowledge.StatusStored); err != nil {
		return Result{Item: item, Err: err}
	}
	log.Debug("ingested item",
		"item_id", item.ID, "modality", item.Modality, "chunks", len(chunks), "collection", col.Name)
	return Result{Item: item, Chunks: len(chunks)}
}

// dedupProbe checks the candidate keys before any expensive work.
func (o *Orchestrator) dedupProbe(ctx context.Context, input *Input, hash string) (*knowledge.SourceItem, bool) {
	existing, err := o.repo.FindExisting(ctx, store.ExistingKeys{
		ContentHash: hash,
		FilePath:    input.FilePath,
		URL:         input.URL,
	})
	if err != nil {
		return nil, false
	}
	knowledge.RecordDedupHit(ctx, input.Modality)
	return existing, true
}

func (o *Orchestrator) routeCollection(m knowledge.Modality) *knowledge.Collection {
	for i := range o.collections {
		if o.collections[i].AcceptsModality(m) {
			return &o.collections[i]
		}
	}
	return nil
}

// embedWithRetry retries transient embedding failures with exponential
// backoff. Configuration defects are not retryable.
func (o *Orchestrator) embedWithRetry(
	ctx context.Context,
	item *knowledge.SourceItem,
	data []extract.DataChunk,
	col *knowledge.Collection,
) ([]knowledge.Chunk, error) {
	var chunks []knowledge.Chunk
	backoff := retry.WithMaxRetries(o.retryMax, retry.NewExponential(o.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, embedErr := o.embedder.Embed(ctx, item, data, col)
		if embedErr != nil {
			if knowledge.IsConfigError(embedErr) {
				return embedErr
			}
			return retry.RetryableError(embedErr)
		}
		chunks = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (o *Orchestrator) upsertChunks(
	ctx context.Context,
	item *knowledge.SourceItem,
	chunks []knowledge.Chunk,
	col *knowledge.Collection,
) error {
	points := make([]vectordb.Point, 0, len(chunks))
	for i := range chunks {
		points = append(points, vectordb.Point{
			ID:      PointID(chunks[i].ID),
			Vector:  chunks[i].Vector,
			Payload: pointPayload(item, &chunks[i]),
		})
	}
	return o.vectors.Upsert(ctx, col.Name, points)
}

// PointID derives the deterministic vector-store point id for a chunk. The
// vector engine only accepts UUID or integer ids, so the chunk id is hashed
// into a name-based UUID.
func PointID(chunkID core.ID) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// pointPayload carries enough metadata to reconstruct display context and to
// serve composite filters without reading the relational store.
func pointPayload(item *knowledge.SourceItem, c *knowledge.Chunk) map[string]any {
	payload := core.CloneMap(c.Metadata)
	if payload == nil {
		payload = make(map[string]any, 4)
	}
	payload["chunk_id"] = string(c.ID)
	payload["item_id"] = string(item.ID)
	payload["modality"] = string(item.Modality)
	if len(item.Tags) > 0 {
		payload["tags"] = core.CloneSlice(item.Tags)
	}
	return payload
}

func (o *Orchestrator) transition(ctx context.Context, item *knowledge.SourceItem, next knowledge.EmbedStatus) error {
	status, err := item.Status.Transition(next)
	if err != nil {
		return err
	}
	if err := o.repo.UpdateStatus(ctx, item.ID, status); err != nil {
		return fmt.Errorf("ingest: persist status %q for %s: %w", status, item.ID, err)
	}
	item.Status = status
	knowledge.RecordStatusTransition(ctx, status)
	return nil
}

// failItem records a pipeline failure on the item. The relational write
// happens regardless of how far the pipeline got; Failed is a persisted
// terminal-for-now state, not an aborted transaction.
func (o *Orchestrator) failItem(ctx context.Context, item *knowledge.SourceItem, cause error) Result {
	log := logger.FromContext(ctx)
	if err := o.transition(ctx, item, knowledge.StatusFailed); err != nil {
		log.Error("could not record failure", "item_id", item.ID, "error", err)
	}
	log.Warn("ingestion failed", "item_id", item.ID, "modality", item.Modality, "error", cause)
	return Result{Item: item, Err: cause}
}

// Reprocess deletes an item's chunks, blobs, and vector points, then resets
// its status to Raw so the pipeline can run again.
func (o *Orchestrator) Reprocess(ctx context.Context, itemID core.ID) error {
	items, err := o.repo.GetItems(ctx, []core.ID{itemID})
	if err != nil {
		return fmt.Errorf("ingest: load item %s: %w", itemID, err)
	}
	if len(items) == 0 {
		return knowledge.ErrNotFound
	}
	item := &items[0]

	chunks, err := o.repo.ChunksByItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("ingest: load chunks for %s: %w", itemID, err)
	}
	if err := o.deletePoints(ctx, chunks); err != nil {
		return err
	}
	if o.blobs != nil {
		for i := range chunks {
			if err := o.blobs.Remove(chunks[i].FileRefs); err != nil {
				return fmt.Errorf("ingest: remove blobs for chunk %s: %w", chunks[i].ID, err)
			}
		}
	}
	if err := o.repo.DeleteChunksByItem(ctx, itemID); err != nil {
		return fmt.Errorf("ingest: delete chunks for %s: %w", itemID, err)
	}
	return o.transition(ctx, item, knowledge.StatusRaw)
}

func (o *Orchestrator) deletePoints(ctx context.Context, chunks []knowledge.Chunk) error {
	byCollection := make(map[string][]string)
	for i := range chunks {
		byCollection[chunks[i].Collection] = append(byCollection[chunks[i].Collection], PointID(chunks[i].ID))
	}
	for collection, ids := range byCollection {
		if err := o.vectors.Delete(ctx, collection, ids); err != nil {
			return fmt.Errorf("ingest: delete points in %q: %w", collection, err)
		}
	}
	return nil
}

// Requeue retries the vector-store step for items stuck in Queued or parked in
// Failed that still have persisted chunks. It is the entry point for an
// external reconciliation sweep; items without chunks need a full Reprocess.
func (o *Orchestrator) Requeue(ctx context.Context, limit int) (int, error) {
	log := logger.FromContext(ctx)
	recovered := 0
	for _, status := range []knowledge.EmbedStatus{knowledge.StatusQueued, knowledge.StatusFailed} {
		items, err := o.repo.ItemsByStatus(ctx, status, limit)
		if err != nil {
			return recovered, fmt.Errorf("ingest: list %q items: %w", status, err)
		}
		for i := range items {
			item := &items[i]
			ok, err := o.requeueOne(ctx, item)
			if err != nil {
				log.Warn("requeue failed", "item_id", item.ID, "error", err)
				continue
			}
			if ok {
				recovered++
			}
		}
	}
	return recovered, nil
}

func (o *Orchestrator) requeueOne(ctx context.Context, item *knowledge.SourceItem) (bool, error) {
	chunks, err := o.repo.ChunksByItem(ctx, item.ID)
	if err != nil {
		return false, err
	}
	if len(chunks) == 0 {
		return false, nil
	}
	col := o.routeCollection(item.Modality)
	if col == nil {
		return false, knowledge.NewConfigError("no collection accepts modality %q", item.Modality)
	}
	if item.Status == knowledge.StatusFailed {
		// Failed re-enters the pipeline through Raw, then Queued, since the
		// chunks already exist.
		if err := o.transition(ctx, item, knowledge.StatusRaw); err != nil {
			return false, err
		}
		if err := o.transition(ctx, item, knowledge.StatusQueued); err != nil {
			return false, err
		}
	}
	if err := o.upsertChunks(ctx, item, chunks, col); err != nil {
		if failErr := o.transition(ctx, item, knowledge.StatusFailed); failErr != nil {
			return false, failErr
		}
		return false, err
	}
	if err := o.transition(ctx, item, knowledge.StatusStored); err != nil {
		return false, err
	}
	return true, nil
}
