package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const s3Scheme = "s3://"

// ObjectStore is the subset of the S3 client the loader needs.
type ObjectStore interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3Loader loads documents from an s3://bucket/prefix source.
type S3Loader struct {
	store  ObjectStore
	parser *Parser
}

func NewS3Loader(store ObjectStore, parser *Parser) *S3Loader {
	return &S3Loader{store: store, parser: parser}
}

// IsS3URI reports whether source names an S3 location.
func IsS3URI(source string) bool {
	return strings.HasPrefix(source, s3Scheme)
}

// ParseS3URI splits s3://bucket/prefix into its parts.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", fmt.Errorf("%q is not an s3:// URI", uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%q has no bucket", uri)
	}
	return bucket, key, nil
}

// List returns an s3:// URI for every supported object under root.
func (l *S3Loader) List(ctx context.Context, root string) ([]string, error) {
	bucket, prefix, err := ParseS3URI(root)
	if err != nil {
		return nil, err
	}

	keys, err := l.store.ListKeys(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, "/") || !l.parser.Accepts(key) {
			continue
		}
		refs = append(refs, s3Scheme+bucket+"/"+key)
	}
	return refs, nil
}

// Load downloads and parses one object.
func (l *S3Loader) Load(ctx context.Context, ref string) ([]domain.RawDocument, error) {
	bucket, key, err := ParseS3URI(ref)
	if err != nil {
		return nil, domain.NewLoadError(ref, err)
	}

	data, err := l.store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, domain.NewLoadError(ref, err)
	}
	return l.parser.Parse(ctx, ref, data)
}
