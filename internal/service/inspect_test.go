package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func indexedTexts(texts ...string) []domain.IndexedChunk {
	out := make([]domain.IndexedChunk, len(texts))
	for i, text := range texts {
		out[i] = domain.IndexedChunk{
			ID:    "chunk-" + string(rune('a'+i)),
			Chunk: domain.Chunk{Text: text, SourceFile: "notes.md", SequenceIndex: i},
		}
	}
	return out
}

func TestChunkInspector_List(t *testing.T) {
	index := new(MockVectorIndex)
	inspector := NewChunkInspector(index)
	ctx := context.Background()
	chunks := indexedTexts("one", "two")

	index.On("Count", ctx).Return(12, nil)
	index.On("List", ctx, 4, 2).Return(chunks, nil)

	listing, err := inspector.List(ctx, 5, 2)

	require.NoError(t, err)
	assert.Equal(t, 12, listing.Total)
	assert.Equal(t, 5, listing.Start)
	assert.Equal(t, chunks, listing.Chunks)
}

func TestChunkInspector_List_Validation(t *testing.T) {
	inspector := NewChunkInspector(new(MockVectorIndex))

	_, err := inspector.List(context.Background(), 0, 10)
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	_, err = inspector.List(context.Background(), 1, 0)
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
}

func TestChunkInspector_View(t *testing.T) {
	index := new(MockVectorIndex)
	inspector := NewChunkInspector(index)
	ctx := context.Background()
	text := "# Momentum\n\np = m × v\nF = dp/dt\nplain line"

	index.On("Count", ctx).Return(3, nil)
	index.On("List", ctx, 1, 1).Return(indexedTexts(text), nil)

	view, err := inspector.View(ctx, 2)

	require.NoError(t, err)
	assert.Equal(t, 2, view.Position)
	assert.Equal(t, 5, view.TotalLines)
	assert.Equal(t, 4, view.NonEmptyLines)
	assert.Equal(t, []NumberedLine{{3, "p = m × v"}, {4, "F = dp/dt"}}, view.FormulaLines)
	assert.Equal(t, 0, view.FormulaOverrun)
	assert.Equal(t, 1, view.Lines[0].Number)
	assert.Equal(t, 3, view.Lines[1].Number)
	assert.InDelta(t, float64(len([]rune(text))-4)/5, view.AvgLineLength, 0.001)
}

func TestChunkInspector_View_CapsFormulaLines(t *testing.T) {
	view := describeChunk(indexedTexts(strings.Repeat("a = b\n", 7) + "done")[0])

	assert.Len(t, view.FormulaLines, 5)
	assert.Equal(t, 2, view.FormulaOverrun)
}

func TestChunkInspector_View_OutOfRange(t *testing.T) {
	index := new(MockVectorIndex)
	inspector := NewChunkInspector(index)
	ctx := context.Background()

	index.On("Count", ctx).Return(3, nil)

	_, err := inspector.View(ctx, 4)

	assert.True(t, errors.Is(err, domain.ErrChunkNotFound))
	index.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestChunkInspector_Search(t *testing.T) {
	index := new(MockVectorIndex)
	inspector := NewChunkInspector(index)
	ctx := context.Background()
	long := strings.Repeat("x", 60) + "Импульс тела\nравен" + strings.Repeat("y", 60)

	index.On("List", ctx, 0, inspectPageSize).Return(indexedTexts("nothing here", long, "ИМПУЛЬС again"), nil)

	matches, err := inspector.Search(ctx, "импульс", 10)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 2, matches[0].Position)
	assert.Equal(t, 60, matches[0].Offset)
	assert.Equal(t, strings.Repeat("x", 50)+"Импульс тела равен"+strings.Repeat("y", 39), matches[0].Context)
	assert.Equal(t, 3, matches[1].Position)
}

func TestChunkInspector_Search_StopsAtMax(t *testing.T) {
	index := new(MockVectorIndex)
	inspector := NewChunkInspector(index)
	ctx := context.Background()

	index.On("List", ctx, 0, inspectPageSize).Return(indexedTexts("energy", "energy", "energy"), nil)

	matches, err := inspector.Search(ctx, "Energy", 2)

	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestChunkInspector_Search_RequiresTerm(t *testing.T) {
	inspector := NewChunkInspector(new(MockVectorIndex))

	_, err := inspector.Search(context.Background(), " ", 5)

	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
}
