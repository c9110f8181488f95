// Package loader enumerates corpus documents and extracts their text.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// DefaultExtensions are the file types loaded when none are configured.
var DefaultExtensions = []string{".txt", ".md", ".markdown", ".pdf"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Parser dispatches raw bytes to a text or PDF decoder by extension.
type Parser struct {
	extensions map[string]bool
	pdf        *PDFExtractor
}

// NewParser creates a Parser accepting extensions (case-insensitive, with or
// without the leading dot). Empty means DefaultExtensions.
func NewParser(extensions []string, pdf *PDFExtractor) *Parser {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	if pdf == nil {
		pdf = NewPDFExtractor()
	}
	return &Parser{extensions: set, pdf: pdf}
}

// Accepts reports whether name has a supported extension.
func (p *Parser) Accepts(name string) bool {
	return p.extensions[strings.ToLower(path.Ext(name))]
}

// Parse converts data into documents. Failures are LoadErrors.
func (p *Parser) Parse(ctx context.Context, source string, data []byte) ([]domain.RawDocument, error) {
	ext := strings.ToLower(path.Ext(source))
	if !p.extensions[ext] {
		return nil, domain.NewLoadError(source, fmt.Errorf("unsupported extension %q", ext))
	}

	if ext == ".pdf" {
		docs, err := p.pdf.Extract(ctx, data, source)
		if err != nil {
			return nil, domain.NewLoadError(source, err)
		}
		return docs, nil
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, domain.NewLoadError(source, err)
	}
	return []domain.RawDocument{{Text: text, Source: source}}, nil
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}
