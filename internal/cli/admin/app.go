// Package admin implements the docchatd commands.
package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/loader"
	"github.com/cloo-solutions/docchat/internal/logger"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/repository"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/storage"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	flagNoMigrate  = "no-migrate"
	flagMigrations = "migrations"
)

// app is the wiring shared by every docchatd command.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	pool   *pgxpool.Pool
	index  service.VectorIndex
	runs   *repository.BuildRunRepository
	closer []func()
}

func addDatabaseFlags(fs *pflag.FlagSet) {
	fs.AddFlagSet(cli.IndexFlags())
	fs.Bool(flagNoMigrate, false, "Skip automatic database migrations on startup")
	fs.String(flagMigrations, database.DefaultMigrationsURL, "Migration source URL")
}

// newApp loads configuration, applies cmd's flag overrides and opens the
// configured index.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cli.ApplyOverrides(cmd.Flags(), cfg); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Debug: cfg.Debug, FilePath: cfg.LogFile})
	a := &app{cfg: cfg, log: log}
	a.closer = append(a.closer, func() { _ = log.Sync() })

	flush := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
		Debug:            cfg.Debug,
	}, log)
	a.closer = append(a.closer, flush)

	if !cfg.UsesPostgres() {
		a.index = repository.NewMemoryIndex()
		return a, nil
	}

	if noMigrate, _ := cmd.Flags().GetBool(flagNoMigrate); !noMigrate {
		source, _ := cmd.Flags().GetString(flagMigrations)
		if source == "" {
			source = database.DefaultMigrationsURL
		}
		if err := database.Migrate(cfg.DatabaseURL, source, log); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("connected to database")
	a.pool = pool
	a.closer = append(a.closer, pool.Close)
	a.index = repository.NewPgVectorIndex(pool, cfg.IndexName, cfg.EmbeddingDimensions)
	a.runs = repository.NewBuildRunRepository(pool)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
	a.closer = nil
}

func (a *app) modelClient() *openai.Client {
	return openai.NewClient(openai.Config{
		APIKey:              a.cfg.OpenAIAPIKey,
		BaseURL:             a.cfg.OpenAIBaseURL,
		EmbeddingModel:      a.cfg.EmbeddingModel,
		EmbeddingDimensions: a.cfg.EmbeddingDimensions,
		ChatModel:           a.cfg.ChatModel,
		Temperature:         a.cfg.Temperature,
	})
}

func (a *app) parser() *loader.Parser {
	return loader.NewParser(a.cfg.DocExtensions, nil)
}

func (a *app) documentLoader(ctx context.Context) (*loader.Router, error) {
	parser := a.parser()
	var s3Loader *loader.S3Loader
	if a.cfg.HasS3() {
		client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        a.cfg.S3Endpoint,
			Region:          a.cfg.S3Region,
			AccessKeyID:     a.cfg.S3AccessKey,
			SecretAccessKey: a.cfg.S3SecretKey,
			UsePathStyle:    a.cfg.S3Endpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if loader.IsS3URI(a.cfg.DocsPath) {
			bucket, _, err := loader.ParseS3URI(a.cfg.DocsPath)
			if err != nil {
				return nil, err
			}
			if err := client.BucketExists(ctx, bucket); err != nil {
				return nil, err
			}
		}
		s3Loader = loader.NewS3Loader(client, parser)
	}
	return loader.NewRouter(loader.NewFileSystemLoader(parser), s3Loader), nil
}

func (a *app) corpusBuilder(ctx context.Context) (*service.CorpusBuilder, error) {
	docs, err := a.documentLoader(ctx)
	if err != nil {
		return nil, err
	}
	chunker, err := service.NewChunker(service.ChunkConfig{
		MaxSize: a.cfg.ChunkSize,
		Overlap: a.cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	builder := service.NewCorpusBuilder(docs, chunker, a.modelClient(), a.index, a.cfg.EmbedBatchSize, a.log)
	if a.runs != nil {
		builder.WithRunRecorder(a.runs)
	}
	return builder, nil
}

func (a *app) queryEngine() *service.QueryEngine {
	sessions := service.NewSessionStore(service.SessionStoreConfig{
		TTL:             a.cfg.SessionTTL,
		CleanupInterval: a.cfg.SessionCleanupInterval,
	})

	queryCfg := service.DefaultQueryConfig()
	queryCfg.TopK = a.cfg.TopK
	queryCfg.HistoryMaxTurns = a.cfg.HistoryMaxTurns
	queryCfg.GenerationTimeout = a.cfg.GenerationTimeout
	if a.cfg.SystemPrompt != "" {
		queryCfg.SystemPrompt = a.cfg.SystemPrompt
	}

	client := a.modelClient()
	return service.NewQueryEngine(client, a.index, client, sessions, queryCfg, a.log)
}
