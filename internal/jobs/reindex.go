package jobs

import (
	"context"
	"errors"

	"github.com/cloo-solutions/docchat/internal/domain"
	"go.uber.org/zap"
)

// IndexBuilder rebuilds the chunk index from a source.
type IndexBuilder interface {
	Build(ctx context.Context, source string) (*domain.BuildResult, error)
}

// ChangeSignal reports whether the corpus changed since the last check.
type ChangeSignal interface {
	TakeChanged() bool
	MarkChanged()
}

// ReindexProcessor rebuilds the index when its signal reports a change, or
// on every run when it has no signal.
type ReindexProcessor struct {
	builder IndexBuilder
	source  string
	signal  ChangeSignal
	log     *zap.Logger
}

// NewReindexProcessor creates a ReindexProcessor. signal may be nil.
func NewReindexProcessor(builder IndexBuilder, source string, signal ChangeSignal, log *zap.Logger) *ReindexProcessor {
	return &ReindexProcessor{builder: builder, source: source, signal: signal, log: log}
}

// ProcessJobs implements JobProcessor. A failed build is retried on the next
// run; an empty corpus is logged and leaves the current index in place.
func (p *ReindexProcessor) ProcessJobs(ctx context.Context) error {
	if p.signal != nil && !p.signal.TakeChanged() {
		return nil
	}

	result, err := p.builder.Build(ctx, p.source)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCorpus) {
			p.log.Warn("reindex skipped: corpus is empty", zap.String("source", p.source))
			return nil
		}
		if p.signal != nil && ctx.Err() == nil {
			p.signal.MarkChanged()
		}
		return err
	}

	p.log.Info("reindex complete",
		zap.String("run_id", result.RunID),
		zap.Int("chunks_persisted", result.ChunksPersisted))
	return nil
}
