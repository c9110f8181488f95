package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// RawDocument is one logical unit returned by a loader: a whole text file or
// a single PDF page.
type RawDocument struct {
	Text   string
	Source string
	Page   *int
}

// Chunk is a bounded-size slice of document text with its source metadata.
type Chunk struct {
	Text          string
	SourceFile    string
	PageNumber    *int
	SequenceIndex int
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// IndexedChunk is a chunk persisted in the vector index.
type IndexedChunk struct {
	ID          string
	Chunk       Chunk
	Fingerprint string
	Embedding   []float32
}

// ScoredChunk is a search hit; higher Score means more similar.
type ScoredChunk struct {
	IndexedChunk
	Score float32
}

// BuildResult summarizes one corpus build.
type BuildResult struct {
	RunID             string
	Source            string
	DocumentsLoaded   int
	DocumentsSkipped  int
	ChunksSplit       int
	DuplicatesDropped int
	ChunksPersisted   int
	StartedAt         time.Time
	Duration          time.Duration
}

// PageOf returns a pointer to page for use in RawDocument and Chunk literals.
func PageOf(page int) *int {
	return &page
}

// ValidateRawDocument checks a loaded document before it is chunked.
func ValidateRawDocument(d *RawDocument) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.Source == "" {
		return fmt.Errorf("document Source is required")
	}
	if !utf8.ValidString(d.Text) {
		return fmt.Errorf("document %s is not valid UTF-8", d.Source)
	}
	if d.Page != nil && *d.Page < 1 {
		return fmt.Errorf("document %s has invalid page number %d", d.Source, *d.Page)
	}
	return nil
}
