// Package cli holds flag plumbing shared by docchatd and docchat.
package cli

import (
	"fmt"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/spf13/pflag"
)

// Flag names shared across commands.
const (
	FlagBackend      = "backend"
	FlagIndexName    = "index-name"
	FlagSource       = "source"
	FlagExtensions   = "extensions"
	FlagChunkSize    = "chunk-size"
	FlagChunkOverlap = "chunk-overlap"
	FlagBatchSize    = "batch-size"
	FlagDebug        = "debug"
)

// IndexFlags select which index a command operates on.
func IndexFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("index", pflag.ContinueOnError)
	fs.String(FlagBackend, "", "Index backend: pgvector or memory (overrides DOCCHAT_INDEX_BACKEND)")
	fs.String(FlagIndexName, "", "Index table name (overrides DOCCHAT_INDEX_NAME)")
	fs.Bool(FlagDebug, false, "Debug logging (overrides DOCCHAT_DEBUG)")
	return fs
}

// BuildFlags tune corpus ingestion.
func BuildFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("build", pflag.ContinueOnError)
	fs.String(FlagSource, "", "Document directory or s3://bucket/prefix (overrides DOCCHAT_DOCS_PATH)")
	fs.StringSlice(FlagExtensions, nil, "File extensions to load (overrides DOCCHAT_DOC_EXTENSIONS)")
	fs.Int(FlagChunkSize, 0, "Maximum chunk length in characters (overrides DOCCHAT_CHUNK_SIZE)")
	fs.Int(FlagChunkOverlap, 0, "Characters shared by consecutive chunks (overrides DOCCHAT_CHUNK_OVERLAP)")
	fs.Int(FlagBatchSize, 0, "Chunks per embedding request (overrides DOCCHAT_EMBED_BATCH_SIZE)")
	return fs
}

// ApplyOverrides copies explicitly set flags onto cfg and re-validates it.
// Flags absent from fs are ignored.
func ApplyOverrides(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil {
			return
		}
		if f := fs.Lookup(name); f != nil && f.Changed {
			err = apply()
		}
	}

	set(FlagBackend, func() (e error) { cfg.IndexBackend, e = fs.GetString(FlagBackend); return })
	set(FlagIndexName, func() (e error) { cfg.IndexName, e = fs.GetString(FlagIndexName); return })
	set(FlagDebug, func() (e error) { cfg.Debug, e = fs.GetBool(FlagDebug); return })
	set(FlagSource, func() (e error) { cfg.DocsPath, e = fs.GetString(FlagSource); return })
	set(FlagExtensions, func() (e error) { cfg.DocExtensions, e = fs.GetStringSlice(FlagExtensions); return })
	set(FlagChunkSize, func() (e error) { cfg.ChunkSize, e = fs.GetInt(FlagChunkSize); return })
	set(FlagChunkOverlap, func() (e error) { cfg.ChunkOverlap, e = fs.GetInt(FlagChunkOverlap); return })
	set(FlagBatchSize, func() (e error) { cfg.EmbedBatchSize, e = fs.GetInt(FlagBatchSize); return })
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
