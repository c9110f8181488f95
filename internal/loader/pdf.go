package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// ErrPDFToolNotFound is returned when pdftotext is not on PATH.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")

// CommandRunner executes an external command with stdin and returns stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// PDFExtractor turns PDF bytes into one RawDocument per page.
type PDFExtractor struct {
	runner CommandRunner
}

// NewPDFExtractor uses pdftotext via os/exec.
func NewPDFExtractor() *PDFExtractor {
	return NewPDFExtractorWithRunner(ExecRunner{})
}

// NewPDFExtractorWithRunner is used by tests to substitute the command.
func NewPDFExtractorWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: runner}
}

// Extract runs pdftotext and splits its output on form feeds. Page numbers
// start at 1.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, source string) ([]domain.RawDocument, error) {
	out, err := e.runner.Run(ctx, bytes.NewReader(data), "pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	if err != nil {
		return nil, err
	}

	text, err := decodeText(out)
	if err != nil {
		return nil, err
	}

	pages := strings.Split(text, "\f")
	// pdftotext terminates the last page with a form feed as well.
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	docs := make([]domain.RawDocument, 0, len(pages))
	for i, page := range pages {
		docs = append(docs, domain.RawDocument{
			Text:   page,
			Source: source,
			Page:   domain.PageOf(i + 1),
		})
	}
	return docs, nil
}
