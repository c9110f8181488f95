package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockDocumentLoader mocks DocumentLoader
type MockDocumentLoader struct {
	mock.Mock
}

func (m *MockDocumentLoader) List(ctx context.Context, root string) ([]string, error) {
	args := m.Called(ctx, root)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentLoader) Load(ctx context.Context, ref string) ([]domain.RawDocument, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawDocument), args.Error(1)
}

// MockEmbeddingClient mocks EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockVectorIndex mocks VectorIndex
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) Search(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, embedding, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

func (m *MockVectorIndex) Exists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockVectorIndex) Replace(ctx context.Context, chunks []domain.IndexedChunk) (int, error) {
	args := m.Called(ctx, chunks)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorIndex) Drop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockVectorIndex) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorIndex) List(ctx context.Context, offset, limit int) ([]domain.IndexedChunk, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IndexedChunk), args.Error(1)
}

// MockChatClient mocks ChatClient
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Complete(ctx context.Context, messages []PromptMessage) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

// MockBuildRunRecorder mocks BuildRunRecorder
type MockBuildRunRecorder struct {
	mock.Mock
}

func (m *MockBuildRunRecorder) Record(ctx context.Context, run *domain.BuildResult) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

type sequentialUUIDs struct {
	n int
}

func (g *sequentialUUIDs) NewString() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func vectorsFor(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out
}
