package repository

import (
	"context"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BuildRunRepository keeps one row per completed corpus build.
type BuildRunRepository struct {
	db dbtx
}

func NewBuildRunRepository(pool *pgxpool.Pool) *BuildRunRepository {
	return &BuildRunRepository{db: pool}
}

func (r *BuildRunRepository) Record(ctx context.Context, run *domain.BuildResult) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO build_runs
			(id, source, documents_loaded, documents_skipped, chunks_split, duplicates_dropped, chunks_persisted, started_at, duration_ms)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.RunID,
		run.Source,
		run.DocumentsLoaded,
		run.DocumentsSkipped,
		run.ChunksSplit,
		run.DuplicatesDropped,
		run.ChunksPersisted,
		run.StartedAt,
		run.Duration.Milliseconds(),
	)
	return err
}

// Latest returns the most recent build, or ErrBuildRunNotFound.
func (r *BuildRunRepository) Latest(ctx context.Context) (*domain.BuildResult, error) {
	var run domain.BuildResult
	var durationMs int64
	err := r.db.QueryRow(ctx,
		`SELECT id::text, source, documents_loaded, documents_skipped, chunks_split, duplicates_dropped, chunks_persisted, started_at, duration_ms
		 FROM build_runs
		 ORDER BY started_at DESC
		 LIMIT 1`,
	).Scan(
		&run.RunID,
		&run.Source,
		&run.DocumentsLoaded,
		&run.DocumentsSkipped,
		&run.ChunksSplit,
		&run.DuplicatesDropped,
		&run.ChunksPersisted,
		&run.StartedAt,
		&durationMs,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBuildRunNotFound
		}
		return nil, err
	}
	run.Duration = msToDuration(durationMs)
	return &run, nil
}
