package knowledge

import (
	"fmt"
	"time"

	"github.com/mnemora/mnemora/engine/core"
)

// Modality is the coarse content-type tag used to route items to collections.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityDoc   Modality = "doc"
	ModalityBook  Modality = "book"
	ModalityBlog  Modality = "blog"
	ModalityEmail Modality = "email"
	ModalityChat  Modality = "chat"
	ModalityPhoto Modality = "photo"
)

// EmbedStatus is the lifecycle stage of a SourceItem's embedding.
type EmbedStatus string

const (
	StatusRaw    EmbedStatus = "raw"
	StatusQueued EmbedStatus = "queued"
	StatusStored EmbedStatus = "stored"
	StatusFailed EmbedStatus = "failed"
)

var validTransitions = map[EmbedStatus][]EmbedStatus{
	StatusRaw:    {StatusQueued, StatusFailed},
	StatusQueued: {StatusStored, StatusFailed},
	StatusStored: {StatusRaw},
	StatusFailed: {StatusRaw},
}

// Transition validates a status change and returns the next status. All embed
// status changes must go through this function; Stored and Failed re-enter Raw
// only via reprocessing.
func (s EmbedStatus) Transition(next EmbedStatus) (EmbedStatus, error) {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("knowledge: invalid embed status transition %q -> %q", s, next)
}

// SourceItem is the canonical record for one ingested unit of content. The
// content hash is globally unique and is the correctness backstop against
// duplicate ingestion.
type SourceItem struct {
	ID          core.ID     `db:"id"`
	Modality    Modality    `db:"modality"`
	ContentHash string      `db:"content_hash"`
	MimeType    string      `db:"mime_type"`
	Tags        []string    `db:"tags"`
	Status      EmbedStatus `db:"status"`
	Size        int64       `db:"size"`
	FilePath    string      `db:"file_path"`
	URL         string      `db:"url"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// Chunk is a persisted (content-or-file-ref, vector, metadata) unit owned by
// exactly one SourceItem. Content and FileRefs are mutually exclusive.
type Chunk struct {
	ID             core.ID        `db:"id"`
	ItemID         core.ID        `db:"item_id"`
	Collection     string         `db:"collection"`
	EmbeddingModel string         `db:"embedding_model"`
	Vector         []float32      `db:"vector"`
	Content        string         `db:"content"`
	FileRefs       []string       `db:"file_refs"`
	Metadata       map[string]any `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}

// HasInlineContent reports whether the chunk carries inline text rather than
// blob file references.
func (c *Chunk) HasInlineContent() bool {
	return c.Content != ""
}
