package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexed(seq int, text string, embedding ...float32) domain.IndexedChunk {
	return domain.IndexedChunk{
		ID:        text,
		Chunk:     domain.Chunk{Text: text, SourceFile: "notes.md", SequenceIndex: seq},
		Embedding: embedding,
	}
}

func TestMemoryIndex_UnavailableBeforeBuild(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	exists, err := idx.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = idx.Search(ctx, []float32{1, 0}, 3)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))

	_, err = idx.Count(ctx)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
}

func TestMemoryIndex_SearchRanksByCosine(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	n, err := idx.Replace(ctx, []domain.IndexedChunk{
		indexed(0, "east", 1, 0),
		indexed(1, "north", 0, 1),
		indexed(2, "north-east", 1, 1),
		indexed(3, "east again", 2, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "east", hits[0].Chunk.Text)
	assert.Equal(t, "east again", hits[1].Chunk.Text)
	assert.Equal(t, "north-east", hits[2].Chunk.Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, hits[2].Score, 1e-3)
}

func TestMemoryIndex_SearchFewerThanK(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_, err := idx.Replace(ctx, []domain.IndexedChunk{indexed(0, "only", 1, 0)})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{0, 1}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, float32(0), hits[0].Score)
}

func TestMemoryIndex_ReplaceDiscardsPrevious(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, err := idx.Replace(ctx, []domain.IndexedChunk{indexed(0, "old", 1, 0), indexed(1, "older", 0, 1)})
	require.NoError(t, err)
	_, err = idx.Replace(ctx, []domain.IndexedChunk{indexed(0, "new", 1, 0)})
	require.NoError(t, err)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	chunks, err := idx.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "new", chunks[0].Chunk.Text)
}

func TestMemoryIndex_ReplaceRejectsMixedDimensions(t *testing.T) {
	idx := NewMemoryIndex()

	_, err := idx.Replace(context.Background(), []domain.IndexedChunk{indexed(0, "a", 1, 0), indexed(1, "b", 1)})

	assert.Error(t, err)
	exists, _ := idx.Exists(context.Background())
	assert.False(t, exists)
}

func TestMemoryIndex_ListPagesInSequenceOrder(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_, err := idx.Replace(ctx, []domain.IndexedChunk{
		indexed(2, "c", 1), indexed(0, "a", 1), indexed(1, "b", 1),
	})
	require.NoError(t, err)

	page, err := idx.List(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Chunk.Text)
	assert.Equal(t, "c", page[1].Chunk.Text)

	page, err = idx.List(ctx, 3, 5)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryIndex_Drop(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_, err := idx.Replace(ctx, []domain.IndexedChunk{indexed(0, "a", 1)})
	require.NoError(t, err)

	require.NoError(t, idx.Drop(ctx))

	_, err = idx.Search(ctx, []float32{1}, 1)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
}
