package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// ChunkConfig controls how documents are split into chunks. Sizes are in
// characters (runes), not bytes.
type ChunkConfig struct {
	MaxSize int
	Overlap int
}

// DefaultChunkConfig provides the default chunk size and overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxSize: 500,
		Overlap: 100,
	}
}

// Validate checks that the config can make progress on any input.
func (c ChunkConfig) Validate() error {
	if c.MaxSize <= 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk configuration",
			fmt.Errorf("max size must be positive, got %d", c.MaxSize))
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk configuration",
			fmt.Errorf("overlap must be in [0, %d), got %d", c.MaxSize, c.Overlap))
	}
	return nil
}

// Chunker splits documents into bounded, overlapping chunks.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker creates a Chunker after validating cfg.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Split chunks every document in order. SequenceIndex counts across the whole
// call, so chunks from the second document continue where the first ended.
func (c *Chunker) Split(docs []domain.RawDocument) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(docs))
	seq := 0
	for i := range docs {
		doc := docs[i]
		if err := domain.ValidateRawDocument(&doc); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "cannot split document", err)
		}
		for _, text := range splitRunes([]rune(doc.Text), c.cfg) {
			chunks = append(chunks, domain.Chunk{
				Text:          text,
				SourceFile:    doc.Source,
				PageNumber:    doc.Page,
				SequenceIndex: seq,
			})
			seq++
		}
	}
	return chunks, nil
}

// splitRunes windows runes with exact overlap. Blank windows before the first
// content or after the last are dropped; blank windows between content are
// kept so every consecutive pair still shares Overlap runes.
func splitRunes(runes []rune, cfg ChunkConfig) []string {
	if isBlank(runes) {
		return nil
	}

	var out []string
	emit := func(piece []rune) {
		if len(out) == 0 && isBlank(piece) {
			return
		}
		out = append(out, string(piece))
	}

	start := 0
	for {
		if len(runes)-start <= cfg.MaxSize {
			emit(runes[start:])
			break
		}
		end := splitPoint(runes, start, cfg)
		emit(runes[start:end])
		start = end - cfg.Overlap
	}

	for len(out) > 0 && isBlank([]rune(out[len(out)-1])) {
		out = out[:len(out)-1]
	}
	return out
}

// boundary reports whether a chunk may end right before runes[p].
type boundary func(runes []rune, p int) bool

// Ordered from most to least preferred.
var boundaries = []boundary{
	// before a markdown heading
	func(r []rune, p int) bool { return r[p-1] == '\n' && r[p] == '#' },
	// before a fenced code block
	func(r []rune, p int) bool {
		return r[p-1] == '\n' && p+3 <= len(r) && string(r[p:p+3]) == "```"
	},
	// after a blank line
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	func(r []rune, p int) bool { return r[p-1] == '\n' },
	// after a sentence
	func(r []rune, p int) bool {
		return p >= 2 && unicode.IsSpace(r[p-1]) && strings.ContainsRune(".!?", r[p-2])
	},
	func(r []rune, p int) bool { return unicode.IsSpace(r[p-1]) },
}

// splitPoint picks the end of the chunk starting at start. The chunk is never
// longer than MaxSize and never shorter than max(Overlap+1, MaxSize/2), which
// keeps the next start strictly ahead of this one.
func splitPoint(runes []rune, start int, cfg ChunkConfig) int {
	limit := start + cfg.MaxSize
	minEnd := start + max(cfg.Overlap+1, cfg.MaxSize/2)
	if minEnd > limit {
		minEnd = limit
	}

	for _, accept := range boundaries {
		for p := limit; p >= minEnd; p-- {
			if accept(runes, p) {
				return p
			}
		}
	}
	return limit
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
