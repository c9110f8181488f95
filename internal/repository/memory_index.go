package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// MemoryIndex is a process-local VectorIndex with brute-force cosine search.
// It is empty until the first Replace.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []domain.IndexedChunk
	built  bool
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Exists(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.built, nil
}

func (m *MemoryIndex) Replace(_ context.Context, chunks []domain.IndexedChunk) (int, error) {
	if len(chunks) > 0 {
		dims := len(chunks[0].Embedding)
		for _, c := range chunks {
			if len(c.Embedding) != dims {
				return 0, fmt.Errorf("chunk %d has %d dimensions, index expects %d",
					c.Chunk.SequenceIndex, len(c.Embedding), dims)
			}
		}
	}

	next := make([]domain.IndexedChunk, len(chunks))
	copy(next, chunks)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Chunk.SequenceIndex < next[j].Chunk.SequenceIndex
	})

	m.mu.Lock()
	m.chunks = next
	m.built = true
	m.mu.Unlock()
	return len(next), nil
}

func (m *MemoryIndex) Drop(_ context.Context) error {
	m.mu.Lock()
	m.chunks = nil
	m.built = false
	m.mu.Unlock()
	return nil
}

// Search ranks every chunk by cosine similarity. Ties keep sequence order.
func (m *MemoryIndex) Search(_ context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.built {
		return nil, domain.ErrIndexUnavailable
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]domain.ScoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if len(c.Embedding) != len(embedding) {
			return nil, fmt.Errorf("query has %d dimensions, index has %d", len(embedding), len(c.Embedding))
		}
		hits = append(hits, domain.ScoredChunk{IndexedChunk: c, Score: cosine(embedding, c.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.built {
		return 0, domain.ErrIndexUnavailable
	}
	return len(m.chunks), nil
}

func (m *MemoryIndex) List(_ context.Context, offset, limit int) ([]domain.IndexedChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.built {
		return nil, domain.ErrIndexUnavailable
	}
	if offset < 0 || offset >= len(m.chunks) || limit <= 0 {
		return nil, nil
	}
	end := min(offset+limit, len(m.chunks))
	out := make([]domain.IndexedChunk, end-offset)
	copy(out, m.chunks[offset:end])
	return out, nil
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
