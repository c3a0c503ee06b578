package store

import (
	"context"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
)

// ExistingKeys are the candidate keys the dedup gate probes before any
// expensive work: the content hash plus the natural keys.
type ExistingKeys struct {
	ContentHash string
	FilePath    string
	URL         string
}

// Repository is the relational source of truth for content and metadata. The
// vector store is a derived, rebuildable index on top of it.
type Repository interface {
	// FindExisting returns the item matching any candidate key, or
	// knowledge.ErrNotFound. A read-only dedup probe; insert-time uniqueness
	// is still enforced by CreateItem.
	FindExisting(ctx context.Context, keys ExistingKeys) (*knowledge.SourceItem, error)
	// CreateItem persists a new item. A duplicate content hash surfaces as
	// knowledge.ErrAlreadyExists so concurrent ingestion races fold into the
	// dedup outcome.
	CreateItem(ctx context.Context, item *knowledge.SourceItem) error
	GetItems(ctx context.Context, ids []core.ID) ([]knowledge.SourceItem, error)
	UpdateStatus(ctx context.Context, id core.ID, status knowledge.EmbedStatus) error
	ItemsByStatus(ctx context.Context, status knowledge.EmbedStatus, limit int) ([]knowledge.SourceItem, error)

	SaveChunks(ctx context.Context, chunks []knowledge.Chunk) error
	GetChunks(ctx context.Context, ids []core.ID) ([]knowledge.Chunk, error)
	ChunksByItem(ctx context.Context, itemID core.ID) ([]knowledge.Chunk, error)
	DeleteChunksByItem(ctx context.Context, itemID core.ID) error
}
