package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnemora/mnemora/engine/core"
	"github.com/mnemora/mnemora/engine/knowledge"
)

const uniqueViolationCode = "23505"

// DBInterface is the minimal pgx surface the repository needs.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository against postgres.
type PostgresRepository struct {
	db DBInterface
}

// NewPostgresRepository wraps an existing connection or pool.
func NewPostgresRepository(db DBInterface) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Connect opens a pool and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*PostgresRepository, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: connect to postgres: %w", err)
	}
	repo := NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool, nil
}

// EnsureSchema creates the source_items and chunks tables when missing. The
// unique index on content_hash is the insert-time dedup backstop.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS source_items (
			id TEXT PRIMARY KEY,
			modality TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			mime_type TEXT NOT NULL DEFAULT '',
			tags JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			file_path TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS source_items_status_idx ON source_items (status)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES source_items (id) ON DELETE CASCADE,
			collection TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			vector JSONB NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			file_refs JSONB NOT NULL DEFAULT '[]',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_item_idx ON chunks (item_id)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

type itemRow struct {
	ID          string    `db:"id"`
	Modality    string    `db:"modality"`
	ContentHash string    `db:"content_hash"`
	MimeType    string    `db:"mime_type"`
	Tags        []byte    `db:"tags"`
	Status      string    `db:"status"`
	Size        int64     `db:"size"`
	FilePath    string    `db:"file_path"`
	URL         string    `db:"url"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row *itemRow) toItem() (*knowledge.SourceItem, error) {
	var tags []string
	if len(row.Tags) > 0 {
		if err := json.Unmarshal(row.Tags, &tags); err != nil {
			return nil, fmt.Errorf("store: decode tags for item %s: %w", row.ID, err)
		}
	}
	return &knowledge.SourceItem{
		ID:          core.ID(row.ID),
		Modality:    knowledge.Modality(row.Modality),
		ContentHash: row.ContentHash,
		MimeType:    row.MimeType,
		Tags:        tags,
		Status:      knowledge.EmbedStatus(row.Status),
		Size:        row.Size,
		FilePath:    row.FilePath,
		URL:         row.URL,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

var itemColumns = []string{
	"id", "modality", "content_hash", "mime_type", "tags",
	"status", "size", "file_path", "url", "created_at", "updated_at",
}

func (r *PostgresRepository) FindExisting(
	ctx context.Context,
	keys ExistingKeys,
) (*knowledge.SourceItem, error) {
	conditions := squirrel.Or{}
	if keys.ContentHash != "" {
		conditions = append(conditions, squirrel.Eq{"content_hash": keys.ContentHash})
	}
	if keys.FilePath != "" {
		conditions = append(conditions, squirrel.Eq{"file_path": keys.FilePath})
	}
	if keys.URL != "" {
		conditions = append(conditions, squirrel.Eq{"url": keys.URL})
	}
	if len(conditions) == 0 {
		return nil, knowledge.ErrNotFound
	}
	query, args, err := squirrel.Select(itemColumns...).
		From("source_items").
		Where(conditions).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build find query: %w", err)
	}
	var row itemRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, knowledge.ErrNotFound
		}
		return nil, fmt.Errorf("store: find existing item: %w", err)
	}
	return row.toItem()
}

func (r *PostgresRepository) CreateItem(ctx context.Context, item *knowledge.SourceItem) error {
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("store: encode tags: %w", err)
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	query, args, err := squirrel.Insert("source_items").
		Columns(itemColumns...).
		Values(
			item.ID, item.Modality, item.ContentHash, item.MimeType, tags,
			item.Status, item.Size, item.FilePath, item.URL, item.CreatedAt, item.UpdatedAt,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return knowledge.ErrAlreadyExists
		}
		return fmt.Errorf("store: insert item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetItems(ctx context.Context, ids []core.ID) ([]knowledge.SourceItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := squirrel.Select(itemColumns...).
		From("source_items").
		Where(squirrel.Eq{"id": ids}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build select query: %w", err)
	}
	var rows []itemRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: select items: %w", err)
	}
	items := make([]knowledge.SourceItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (r *PostgresRepository) UpdateStatus(
	ctx context.Context,
	id core.ID,
	status knowledge.EmbedStatus,
) error {
	query, args, err := squirrel.Update("source_items").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build update query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return knowledge.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ItemsByStatus(
	ctx context.Context,
	status knowledge.EmbedStatus,
	limit int,
) ([]knowledge.SourceItem, error) {
	builder := squirrel.Select(itemColumns...).
		From("source_items").
		Where(squirrel.Eq{"status": status}).
		OrderBy("updated_at ASC").
		PlaceholderFormat(squirrel.Dollar)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build select query: %w", err)
	}
	var rows []itemRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: select items by status: %w", err)
	}
	items := make([]knowledge.SourceItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

type chunkRow struct {
	ID             string    `db:"id"`
	ItemID         string    `db:"item_id"`
	Collection     string    `db:"collection"`
	EmbeddingModel string    `db:"embedding_model"`
	Vector         []byte    `db:"vector"`
	Content        string    `db:"content"`
	FileRefs       []byte    `db:"file_refs"`
	Metadata       []byte    `db:"metadata"`
	CreatedAt      time.Time `db:"created_at"`
}

func (row *chunkRow) toChunk() (*knowledge.Chunk, error) {
	chunk := &knowledge.Chunk{
		ID:             core.ID(row.ID),
		ItemID:         core.ID(row.ItemID),
		Collection:     row.Collection,
		EmbeddingModel: row.EmbeddingModel,
		Content:        row.Content,
		CreatedAt:      row.CreatedAt,
	}
	if len(row.Vector) > 0 {
		if err := json.Unmarshal(row.Vector, &chunk.Vector); err != nil {
			return nil, fmt.Errorf("store: decode vector for chunk %s: %w", row.ID, err)
		}
	}
	if len(row.FileRefs) > 0 {
		if err := json.Unmarshal(row.FileRefs, &chunk.FileRefs); err != nil {
			return nil, fmt.Errorf("store: decode file refs for chunk %s: %w", row.ID, err)
		}
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode metadata for chunk %s: %w", row.ID, err)
		}
	}
	return chunk, nil
}

var chunkColumns = []string{
	"id", "item_id", "collection", "embedding_model", "vector",
	"content", "file_refs", "metadata", "created_at",
}

func (r *PostgresRepository) SaveChunks(ctx context.Context, chunks []knowledge.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	builder := squirrel.Insert("chunks").
		Columns(chunkColumns...).
		PlaceholderFormat(squirrel.Dollar)
	for i := range chunks {
		chunk := &chunks[i]
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now().UTC()
		}
		vector, err := json.Marshal(chunk.Vector)
		if err != nil {
			return fmt.Errorf("store: encode vector: %w", err)
		}
		fileRefs, err := json.Marshal(chunk.FileRefs)
		if err != nil {
			return fmt.Errorf("store: encode file refs: %w", err)
		}
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("store: encode metadata: %w", err)
		}
		builder = builder.Values(
			chunk.ID, chunk.ItemID, chunk.Collection, chunk.EmbeddingModel, vector,
			chunk.Content, fileRefs, metadata, chunk.CreatedAt,
		)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("store: build chunk insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: insert chunks: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetChunks(ctx context.Context, ids []core.ID) ([]knowledge.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := squirrel.Select(chunkColumns...).
		From("chunks").
		Where(squirrel.Eq{"id": ids}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build chunk select: %w", err)
	}
	var rows []chunkRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: select chunks: %w", err)
	}
	chunks := make([]knowledge.Chunk, 0, len(rows))
	for i := range rows {
		chunk, err := rows[i].toChunk()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, nil
}

func (r *PostgresRepository) ChunksByItem(ctx context.Context, itemID core.ID) ([]knowledge.Chunk, error) {
	query, args, err := squirrel.Select(chunkColumns...).
		From("chunks").
		Where(squirrel.Eq{"item_id": itemID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build chunk select: %w", err)
	}
	var rows []chunkRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: select chunks by item: %w", err)
	}
	chunks := make([]knowledge.Chunk, 0, len(rows))
	for i := range rows {
		chunk, err := rows[i].toChunk()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, nil
}

func (r *PostgresRepository) DeleteChunksByItem(ctx context.Context, itemID core.ID) error {
	query, args, err := squirrel.Delete("chunks").
		Where(squirrel.Eq{"item_id": itemID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build chunk delete: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: delete chunks: %w", err)
	}
	return nil
}
