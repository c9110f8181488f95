package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const (
	maxFormulaLines  = 5
	searchContextLen = 50
	inspectPageSize  = 500
)

var formulaIndicators = []string{
	"=", "∑", "∫", "∂", "∇", "α", "β", "γ", "^", "_", "→", "∞", "≠", "≈", "≡", "≤", "≥", "×", "÷", "√",
}

// ChunkReader gives ordered read access to persisted chunks.
type ChunkReader interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]domain.IndexedChunk, error)
}

// ChunkInspector browses the persisted index. Positions are 1-based and follow
// sequence order.
type ChunkInspector struct {
	index ChunkReader
}

func NewChunkInspector(index ChunkReader) *ChunkInspector {
	return &ChunkInspector{index: index}
}

// ChunkListing is one page of chunks.
type ChunkListing struct {
	Start  int
	Total  int
	Chunks []domain.IndexedChunk
}

// NumberedLine is a line of chunk text with its 1-based line number.
type NumberedLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ChunkView is the detailed view of a single chunk.
type ChunkView struct {
	Position       int
	Chunk          domain.IndexedChunk
	Length         int
	Lines          []NumberedLine
	TotalLines     int
	NonEmptyLines  int
	AvgLineLength  float64
	FormulaLines   []NumberedLine
	FormulaOverrun int
}

// ChunkMatch is a search hit with surrounding context.
type ChunkMatch struct {
	Position int    `json:"position"`
	Offset   int    `json:"offset"`
	Context  string `json:"context"`
}

// List returns count chunks starting at position start.
func (i *ChunkInspector) List(ctx context.Context, start, count int) (*ChunkListing, error) {
	if start < 1 {
		return nil, domain.NewValidationError("start must be at least 1")
	}
	if count < 1 {
		return nil, domain.NewValidationError("count must be at least 1")
	}

	total, err := i.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := i.index.List(ctx, start-1, count)
	if err != nil {
		return nil, err
	}
	return &ChunkListing{Start: start, Total: total, Chunks: chunks}, nil
}

// View returns the chunk at position with line statistics.
func (i *ChunkInspector) View(ctx context.Context, position int) (*ChunkView, error) {
	total, err := i.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if position < 1 || position > total {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "chunk not found",
			fmt.Errorf("position %d outside 1-%d", position, total))
	}

	chunks, err := i.index.List(ctx, position-1, 1)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.ErrChunkNotFound
	}

	view := describeChunk(chunks[0])
	view.Position = position
	return view, nil
}

func describeChunk(chunk domain.IndexedChunk) *ChunkView {
	text := chunk.Chunk.Text
	lines := strings.Split(text, "\n")
	view := &ChunkView{
		Chunk:      chunk,
		Length:     utf8.RuneCountInString(text),
		TotalLines: len(lines),
	}

	totalLen := 0
	var formulas []NumberedLine
	for n, line := range lines {
		totalLen += utf8.RuneCountInString(line)
		if strings.TrimSpace(line) != "" {
			view.NonEmptyLines++
			view.Lines = append(view.Lines, NumberedLine{Number: n + 1, Text: line})
		}
		if containsFormula(line) {
			formulas = append(formulas, NumberedLine{Number: n + 1, Text: line})
		}
	}
	view.AvgLineLength = float64(totalLen) / float64(max(1, len(lines)))

	if len(formulas) > maxFormulaLines {
		view.FormulaOverrun = len(formulas) - maxFormulaLines
		formulas = formulas[:maxFormulaLines]
	}
	view.FormulaLines = formulas
	return view
}

func containsFormula(line string) bool {
	for _, indicator := range formulaIndicators {
		if strings.Contains(line, indicator) {
			return true
		}
	}
	return false
}

// Search finds chunks containing term, case-insensitively, and returns up to
// maxResults matches in sequence order.
func (i *ChunkInspector) Search(ctx context.Context, term string, maxResults int) ([]ChunkMatch, error) {
	if strings.TrimSpace(term) == "" {
		return nil, domain.NewValidationError("search term is required")
	}
	if maxResults < 1 {
		maxResults = 10
	}

	needle := []rune(strings.ToLower(term))
	var matches []ChunkMatch
	for offset := 0; ; offset += inspectPageSize {
		page, err := i.index.List(ctx, offset, inspectPageSize)
		if err != nil {
			return nil, err
		}
		for n, chunk := range page {
			match, ok := findMatch(chunk.Chunk.Text, needle)
			if !ok {
				continue
			}
			match.Position = offset + n + 1
			matches = append(matches, match)
			if len(matches) >= maxResults {
				return matches, nil
			}
		}
		if len(page) < inspectPageSize {
			return matches, nil
		}
	}
}

func findMatch(text string, needle []rune) (ChunkMatch, bool) {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	// Offsets must line up with runes; a few scripts change length when lowercased.
	if len(lower) != len(runes) {
		lower = runes
	}

	idx := indexRunes(lower, needle)
	if idx < 0 {
		return ChunkMatch{}, false
	}

	start := max(0, idx-searchContextLen)
	end := min(len(runes), idx+len(needle)+searchContextLen)
	snippet := strings.ReplaceAll(string(runes[start:end]), "\n", " ")
	return ChunkMatch{Offset: idx, Context: snippet}, true
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
