package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "DOCCHAT"

// Index backends.
const (
	BackendPgVector = "pgvector"
	BackendMemory   = "memory"
)

type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	Debug   bool   `envconfig:"DEBUG" default:"false"`
	LogFile string `envconfig:"LOG_FILE"`

	DatabaseURL  string `envconfig:"DATABASE_URL"`
	IndexBackend string `envconfig:"INDEX_BACKEND" default:"pgvector"`
	IndexName    string `envconfig:"INDEX_NAME" default:"chunk_index"`

	DocsPath      string   `envconfig:"DOCS_PATH" default:"./docs"`
	DocExtensions []string `envconfig:"DOC_EXTENSIONS" default:".txt,.md,.markdown,.pdf"`

	ChunkSize      int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap   int `envconfig:"CHUNK_OVERLAP" default:"100"`
	EmbedBatchSize int `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	TopK           int `envconfig:"TOP_K" default:"3"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"mxbai-embed-large"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1024"`

	ChatModel         string        `envconfig:"CHAT_MODEL" default:"gemma3:latest"`
	Temperature       float32       `envconfig:"TEMPERATURE" default:"0.1"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"120s"`
	// SystemPrompt overrides the built-in instruction block when set.
	SystemPrompt string `envconfig:"SYSTEM_PROMPT"`

	SessionTTL             time.Duration `envconfig:"SESSION_TTL" default:"0"`
	SessionCleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"10m"`
	HistoryMaxTurns        int           `envconfig:"HISTORY_MAX_TURNS" default:"0"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.IndexBackend {
	case BackendPgVector:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("%s_DATABASE_URL is required for the %s backend", envPrefix, BackendPgVector))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("INDEX_BACKEND must be %q or %q, got %q", BackendPgVector, BackendMemory, c.IndexBackend))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, errors.New("CHUNK_OVERLAP must be at least 0 and smaller than CHUNK_SIZE"))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, errors.New("EMBED_BATCH_SIZE must be positive"))
	}
	if c.TopK <= 0 {
		errs = append(errs, errors.New("TOP_K must be positive"))
	}
	if c.EmbeddingDimensions < 0 {
		errs = append(errs, errors.New("EMBEDDING_DIMENSIONS must not be negative"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("TEMPERATURE must be between 0 and 2"))
	}
	if c.GenerationTimeout < 0 {
		errs = append(errs, errors.New("GENERATION_TIMEOUT must not be negative"))
	}
	if c.SessionTTL < 0 || c.SessionCleanupInterval < 0 {
		errs = append(errs, errors.New("session durations must not be negative"))
	}
	if c.HistoryMaxTurns < 0 {
		errs = append(errs, errors.New("HISTORY_MAX_TURNS must not be negative"))
	}

	return errors.Join(errs...)
}

// HasS3 reports whether s3:// sources can be loaded. An access key without
// an endpoint targets AWS itself.
func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" || c.S3AccessKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

func (c *Config) UsesPostgres() bool {
	return c.IndexBackend == BackendPgVector
}
