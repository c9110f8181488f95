package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DefaultIndexName is the table holding the chunk index.
const DefaultIndexName = "chunk_index"

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// hnswMaxDimensions is the largest vector pgvector can build an HNSW index on.
const hnswMaxDimensions = 2000

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgVectorIndex stores the chunk index as a single Postgres table with a
// pgvector column. Every build drops and recreates the table.
type PgVectorIndex struct {
	pool       *pgxpool.Pool
	name       string
	dimensions int
}

// NewPgVectorIndex creates an index backed by table name. dimensions fixes
// the vector column width; 0 takes it from the first chunk written.
func NewPgVectorIndex(pool *pgxpool.Pool, name string, dimensions int) *PgVectorIndex {
	if name == "" {
		name = DefaultIndexName
	}
	return &PgVectorIndex{pool: pool, name: name, dimensions: dimensions}
}

func (r *PgVectorIndex) table() string {
	return pgx.Identifier{r.name}.Sanitize()
}

func (r *PgVectorIndex) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, r.table()).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Replace drops the existing table, recreates it and writes chunks in one
// transaction, so searches see either the old index or the new one.
func (r *PgVectorIndex) Replace(ctx context.Context, chunks []domain.IndexedChunk) (int, error) {
	dims := r.dimensions
	if dims == 0 && len(chunks) > 0 {
		dims = len(chunks[0].Embedding)
	}
	if dims <= 0 {
		return 0, domain.NewValidationError("cannot create an index without a vector dimension")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.recreate(ctx, tx, dims); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) != dims {
			return 0, fmt.Errorf("chunk %d has %d dimensions, index expects %d",
				c.Chunk.SequenceIndex, len(c.Embedding), dims)
		}
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (id, sequence_index, source_file, page_number, content, fingerprint, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.table()),
			c.ID,
			c.Chunk.SequenceIndex,
			c.Chunk.SourceFile,
			c.Chunk.PageNumber,
			c.Chunk.Text,
			c.Fingerprint,
			pgvector.NewVector(c.Embedding),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	if dims <= hnswMaxDimensions {
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`CREATE INDEX %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{r.name + "_embedding_idx"}.Sanitize(), r.table()))
		if err != nil {
			return 0, fmt.Errorf("failed to create vector index: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (r *PgVectorIndex) recreate(ctx context.Context, tx pgx.Tx, dims int) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, r.table())); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
		id TEXT PRIMARY KEY,
		sequence_index INT NOT NULL,
		source_file TEXT NOT NULL,
		page_number INT,
		content TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	)`, r.table(), dims))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (r *PgVectorIndex) Drop(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, r.table()))
	return err
}

// searchSQL orders by distance alone so the planner can serve it from the
// HNSW index. Ties come back in whatever order the index yields.
func (r *PgVectorIndex) searchSQL() string {
	return fmt.Sprintf(
		`SELECT id, sequence_index, source_file, page_number, content, fingerprint,
			1 - (embedding <=> $1) AS score
		 FROM %s
		 ORDER BY embedding <=> $1
		 LIMIT $2`, r.table())
}

// Search returns the k chunks closest to embedding by cosine distance.
func (r *PgVectorIndex) Search(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, r.searchSQL(), pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, mapIndexError(err)
	}
	defer rows.Close()

	var hits []domain.ScoredChunk
	for rows.Next() {
		var hit domain.ScoredChunk
		var score float64
		if err := rows.Scan(
			&hit.ID,
			&hit.Chunk.SequenceIndex,
			&hit.Chunk.SourceFile,
			&hit.Chunk.PageNumber,
			&hit.Chunk.Text,
			&hit.Fingerprint,
			&score,
		); err != nil {
			return nil, err
		}
		hit.Score = float32(score)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, mapIndexError(err)
	}
	return hits, nil
}

func (r *PgVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table())).Scan(&n)
	if err != nil {
		return 0, mapIndexError(err)
	}
	return n, nil
}

// List returns chunks in sequence order without their embeddings.
func (r *PgVectorIndex) List(ctx context.Context, offset, limit int) ([]domain.IndexedChunk, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, sequence_index, source_file, page_number, content, fingerprint
		 FROM %s
		 ORDER BY sequence_index
		 OFFSET $1 LIMIT $2`, r.table()),
		offset, limit)
	if err != nil {
		return nil, mapIndexError(err)
	}
	defer rows.Close()

	var chunks []domain.IndexedChunk
	for rows.Next() {
		var c domain.IndexedChunk
		if err := rows.Scan(
			&c.ID,
			&c.Chunk.SequenceIndex,
			&c.Chunk.SourceFile,
			&c.Chunk.PageNumber,
			&c.Chunk.Text,
			&c.Fingerprint,
		); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapIndexError(err)
	}
	return chunks, nil
}

func mapIndexError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrIndexUnavailable)
	}
	return err
}
