package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEmbedBatchSize is the number of chunks sent per embedding request.
const DefaultEmbedBatchSize = 64

// DocumentLoader enumerates and reads documents from a corpus source.
type DocumentLoader interface {
	List(ctx context.Context, root string) ([]string, error)
	Load(ctx context.Context, ref string) ([]domain.RawDocument, error)
}

// EmbeddingClient turns text into vectors.
type EmbeddingClient interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher runs similarity search over the index.
type ChunkSearcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error)
}

// VectorIndex is the persisted chunk index. Replace deletes any existing
// index, creates a fresh one and writes every chunk.
type VectorIndex interface {
	ChunkSearcher
	Exists(ctx context.Context) (bool, error)
	Replace(ctx context.Context, chunks []domain.IndexedChunk) (int, error)
	Drop(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]domain.IndexedChunk, error)
}

// BuildRunRecorder stores a summary row per successful build.
type BuildRunRecorder interface {
	Record(ctx context.Context, run *domain.BuildResult) error
}

// UUIDGenerator defines the interface for generating UUIDs
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// CorpusBuilder rebuilds the vector index from a document source.
type CorpusBuilder struct {
	loader    DocumentLoader
	chunker   *Chunker
	embedder  EmbeddingClient
	index     VectorIndex
	runs      BuildRunRecorder
	uuidGen   UUIDGenerator
	batchSize int
	log       *zap.Logger
	now       func() time.Time
}

// NewCorpusBuilder creates a CorpusBuilder. batchSize <= 0 uses the default.
func NewCorpusBuilder(
	loader DocumentLoader,
	chunker *Chunker,
	embedder EmbeddingClient,
	index VectorIndex,
	batchSize int,
	log *zap.Logger,
) *CorpusBuilder {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &CorpusBuilder{
		loader:    loader,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		uuidGen:   &DefaultUUIDGenerator{},
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

// WithRunRecorder enables build run bookkeeping.
func (b *CorpusBuilder) WithRunRecorder(runs BuildRunRecorder) *CorpusBuilder {
	b.runs = runs
	return b
}

// Build loads, splits, deduplicates and embeds every document under source,
// then replaces the index with the result. The existing index is only touched
// once every chunk has an embedding.
func (b *CorpusBuilder) Build(ctx context.Context, source string) (*domain.BuildResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CorpusBuilder.Build", telemetry.SpanAttributes{
		Source:    source,
		Operation: "build",
	})
	defer span.End()

	result, err := b.build(ctx, source)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetData("chunks_persisted", result.ChunksPersisted)
	return result, nil
}

func (b *CorpusBuilder) build(ctx context.Context, source string) (*domain.BuildResult, error) {
	started := b.now()
	result := &domain.BuildResult{
		RunID:     b.uuidGen.NewString(),
		Source:    source,
		StartedAt: started.UTC(),
	}
	log := b.log.With(zap.String("run_id", result.RunID), zap.String("source", source))

	docs, err := b.loadAll(ctx, source, result, log)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("build %s: %w", source, domain.ErrEmptyCorpus)
	}

	chunks, err := b.chunker.Split(docs)
	if err != nil {
		return nil, err
	}
	result.ChunksSplit = len(chunks)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("build %s produced no chunks: %w", source, domain.ErrEmptyCorpus)
	}

	kept, dropped := Deduplicate(chunks)
	result.DuplicatesDropped = dropped
	log.Info("chunks prepared",
		zap.Int("documents", result.DocumentsLoaded),
		zap.Int("chunks", len(chunks)),
		zap.Int("duplicates_dropped", dropped))

	indexed, err := b.embed(ctx, kept)
	if err != nil {
		return nil, err
	}

	persisted, err := b.index.Replace(ctx, indexed)
	if err != nil {
		return nil, fmt.Errorf("failed to replace index: %w", err)
	}
	result.ChunksPersisted = persisted
	result.Duration = b.now().Sub(started)

	if b.runs != nil {
		if err := b.runs.Record(ctx, result); err != nil {
			log.Warn("failed to record build run", zap.Error(err))
		}
	}

	log.Info("index rebuilt",
		zap.Int("chunks_persisted", persisted),
		zap.Int("documents_skipped", result.DocumentsSkipped),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (b *CorpusBuilder) loadAll(ctx context.Context, source string, result *domain.BuildResult, log *zap.Logger) ([]domain.RawDocument, error) {
	refs, err := b.loader.List(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents in %s: %w", source, err)
	}

	var docs []domain.RawDocument
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loaded, err := b.loader.Load(ctx, ref)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("skipping document", zap.String("document", ref), zap.Error(err))
			result.DocumentsSkipped++
			continue
		}

		result.DocumentsLoaded++
		docs = append(docs, loaded...)
	}
	return docs, nil
}

func (b *CorpusBuilder) embed(ctx context.Context, chunks []FingerprintedChunk) ([]domain.IndexedChunk, error) {
	indexed := make([]domain.IndexedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.batchSize {
		end := min(start+b.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, fc := range batch {
			texts[i] = fc.Chunk.Text
		}

		vectors, err := b.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, asEmbeddingError(err)
		}
		if len(vectors) != len(batch) {
			return nil, domain.NewEmbeddingError(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
		}

		for i, fc := range batch {
			indexed = append(indexed, domain.IndexedChunk{
				ID:          b.uuidGen.NewString(),
				Chunk:       fc.Chunk,
				Fingerprint: fc.Fingerprint.String(),
				Embedding:   vectors[i],
			})
		}
	}
	return indexed, nil
}

func asEmbeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbedding) {
		return err
	}
	return domain.NewEmbeddingError(err)
}
