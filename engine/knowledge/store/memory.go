package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
)

// MemoryRepository is an in-process Repository for tests and local runs. It
// enforces the same content-hash uniqueness as the postgres schema.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[core.ID]knowledge.SourceItem
	chunks map[core.ID]knowledge.Chunk
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:  make(map[core.ID]knowledge.SourceItem),
		chunks: make(map[core.ID]knowledge.Chunk),
	}
}

func (r *MemoryRepository) FindExisting(
	_ context.Context,
	keys ExistingKeys,
) (*knowledge.SourceItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if keys.ContentHash == "" && keys.FilePath == "" && keys.URL == "" {
		return nil, knowledge.ErrNotFound
	}
	for _, item := range r.items {
		if keys.ContentHash != "" && item.ContentHash == keys.ContentHash {
			found := item
			return &found, nil
		}
		if keys.FilePath != "" && item.FilePath == keys.FilePath {
			found := item
			return &found, nil
		}
		if keys.URL != "" && item.URL == keys.URL {
			found := item
			return &found, nil
		}
	}
	return nil, knowledge.ErrNotFound
}

func (r *MemoryRepository) CreateItem(_ context.Context, item *knowledge.SourceItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.ContentHash == item.ContentHash {
			return knowledge.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	stored := *item
	stored.Tags = core.CloneSlice(item.Tags)
	r.items[item.ID] = stored
	return nil
}

func (r *MemoryRepository) GetItems(_ context.Context, ids []core.ID) ([]knowledge.SourceItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]knowledge.SourceItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := r.items[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r *MemoryRepository) UpdateStatus(
	_ context.Context,
	id core.ID,
	status knowledge.EmbedStatus,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return knowledge.ErrNotFound
	}
	item.Status = status
	item.UpdatedAt = time.Now().UTC()
	r.items[id] = item
	return nil
}

func (r *MemoryRepository) ItemsByStatus(
	_ context.Context,
	status knowledge.EmbedStatus,
	limit int,
) ([]knowledge.SourceItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]knowledge.SourceItem, 0)
	for _, item := range r.items {
		if item.Status == status {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.Before(items[j].UpdatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryRepository) SaveChunks(_ context.Context, chunks []knowledge.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for i := range chunks {
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
		stored := chunks[i]
		stored.Vector = core.CloneSlice(chunks[i].Vector)
		stored.FileRefs = core.CloneSlice(chunks[i].FileRefs)
		stored.Metadata = core.CloneMap(chunks[i].Metadata)
		r.chunks[chunks[i].ID] = stored
	}
	return nil
}

func (r *MemoryRepository) GetChunks(_ context.Context, ids []core.ID) ([]knowledge.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chunks := make([]knowledge.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := r.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (r *MemoryRepository) ChunksByItem(_ context.Context, itemID core.ID) ([]knowledge.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chunks := make([]knowledge.Chunk, 0)
	for _, chunk := range r.chunks {
		if chunk.ItemID == itemID {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].CreatedAt.Equal(chunks[j].CreatedAt) {
			return chunks[i].ID < chunks[j].ID
		}
		return chunks[i].CreatedAt.Before(chunks[j].CreatedAt)
	})
	return chunks, nil
}

func (r *MemoryRepository) DeleteChunksByItem(_ context.Context, itemID core.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, chunk := range r.chunks {
		if chunk.ItemID == itemID {
			delete(r.chunks, id)
		}
	}
	return nil
}
