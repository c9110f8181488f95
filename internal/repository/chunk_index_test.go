//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/testutil"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgVectorIndex_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	idx := NewPgVectorIndex(pool, "test_chunks", 3)

	exists, err := idx.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = idx.Search(ctx, []float32{1, 0, 0}, 3)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))

	chunks := []domain.IndexedChunk{
		{ID: uuid.NewString(), Chunk: domain.Chunk{Text: "force", SourceFile: "a.md", SequenceIndex: 0}, Fingerprint: "f0", Embedding: []float32{1, 0, 0}},
		{ID: uuid.NewString(), Chunk: domain.Chunk{Text: "energy", SourceFile: "b.pdf", PageNumber: domain.PageOf(2), SequenceIndex: 1}, Fingerprint: "f1", Embedding: []float32{0, 1, 0}},
		{ID: uuid.NewString(), Chunk: domain.Chunk{Text: "work", SourceFile: "b.pdf", PageNumber: domain.PageOf(3), SequenceIndex: 2}, Fingerprint: "f2", Embedding: []float32{0.9, 0.1, 0}},
	}
	n, err := idx.Replace(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "force", hits[0].Chunk.Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "work", hits[1].Chunk.Text)
	require.NotNil(t, hits[1].Chunk.PageNumber)
	assert.Equal(t, 3, *hits[1].Chunk.PageNumber)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	listed, err := idx.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "energy", listed[0].Chunk.Text)
	require.NotNil(t, listed[0].Chunk.PageNumber)
	assert.Equal(t, 2, *listed[0].Chunk.PageNumber)

	_, err = idx.Replace(ctx, chunks[:1])
	require.NoError(t, err)
	count, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, idx.Drop(ctx))
	exists, err = idx.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPgVectorIndex_SearchUsesVectorIndex(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	idx := NewPgVectorIndex(pool, "plan_chunks", 3)
	chunks := make([]domain.IndexedChunk, 50)
	for i := range chunks {
		chunks[i] = domain.IndexedChunk{
			ID:          uuid.NewString(),
			Chunk:       domain.Chunk{Text: fmt.Sprintf("chunk %d", i), SourceFile: "a.md", SequenceIndex: i},
			Fingerprint: fmt.Sprintf("f%d", i),
			Embedding:   []float32{float32(i%7) + 1, float32(i%3) + 1, 1},
		}
	}
	_, err := idx.Replace(ctx, chunks)
	require.NoError(t, err)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.Exec(ctx, "SET enable_seqscan = off")
	require.NoError(t, err)

	rows, err := conn.Query(ctx, "EXPLAIN "+idx.searchSQL(), pgvector.NewVector([]float32{1, 0, 0}), 3)
	require.NoError(t, err)
	var plan strings.Builder
	for rows.Next() {
		var line string
		require.NoError(t, rows.Scan(&line))
		plan.WriteString(line + "\n")
	}
	require.NoError(t, rows.Err())

	assert.Contains(t, plan.String(), "plan_chunks_embedding_idx")
	assert.NotContains(t, plan.String(), "Sort")
}

func TestPgVectorIndex_ReplaceRollsBackOnDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	idx := NewPgVectorIndex(pool, "", 2)
	_, err := idx.Replace(ctx, []domain.IndexedChunk{
		{ID: "keep", Chunk: domain.Chunk{Text: "kept", SourceFile: "a.md"}, Fingerprint: "k", Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)

	_, err = idx.Replace(ctx, []domain.IndexedChunk{
		{ID: "bad", Chunk: domain.Chunk{Text: "bad", SourceFile: "a.md"}, Fingerprint: "b", Embedding: []float32{1, 0, 0}},
	})
	require.Error(t, err)

	listed, err := idx.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "kept", listed[0].Chunk.Text)
}

func TestBuildRunRepository_RecordAndLatest(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()
	require.NoError(t, testutil.TruncateAll(ctx, pool))

	repo := NewBuildRunRepository(pool)

	_, err := repo.Latest(ctx)
	assert.True(t, errors.Is(err, domain.ErrBuildRunNotFound))

	now := time.Now().UTC().Truncate(time.Microsecond)
	older := &domain.BuildResult{RunID: uuid.NewString(), Source: "./docs", DocumentsLoaded: 1, StartedAt: now.Add(-time.Hour)}
	newer := &domain.BuildResult{
		RunID:             uuid.NewString(),
		Source:            "s3://course/notes",
		DocumentsLoaded:   4,
		DocumentsSkipped:  1,
		ChunksSplit:       12,
		DuplicatesDropped: 2,
		ChunksPersisted:   10,
		StartedAt:         now,
		Duration:          1500 * time.Millisecond,
	}
	require.NoError(t, repo.Record(ctx, older))
	require.NoError(t, repo.Record(ctx, newer))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.RunID, latest.RunID)
	assert.Equal(t, newer.ChunksPersisted, latest.ChunksPersisted)
	assert.Equal(t, newer.Duration, latest.Duration)
	assert.True(t, newer.StartedAt.Equal(latest.StartedAt))
}
