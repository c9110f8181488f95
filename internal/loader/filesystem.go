package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// FileSystemLoader loads documents from a local directory tree.
type FileSystemLoader struct {
	parser *Parser
}

func NewFileSystemLoader(parser *Parser) *FileSystemLoader {
	return &FileSystemLoader{parser: parser}
}

// List walks root and returns supported files in lexical order. Hidden
// directories are skipped.
func (l *FileSystemLoader) List(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && l.parser.Accepts(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Load reads and parses one file.
func (l *FileSystemLoader) Load(ctx context.Context, ref string) ([]domain.RawDocument, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, domain.NewLoadError(ref, err)
	}
	return l.parser.Parse(ctx, ref, data)
}
