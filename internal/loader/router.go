package loader

import (
	"context"
	"errors"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// ErrS3NotConfigured is returned for s3:// sources when no S3 client exists.
var ErrS3NotConfigured = errors.New("s3 source requested but S3 is not configured")

// Router sends s3:// sources to the S3 loader and everything else to the
// filesystem.
type Router struct {
	fs *FileSystemLoader
	s3 *S3Loader
}

// NewRouter creates a Router. s3 may be nil.
func NewRouter(fs *FileSystemLoader, s3 *S3Loader) *Router {
	return &Router{fs: fs, s3: s3}
}

func (r *Router) List(ctx context.Context, root string) ([]string, error) {
	if IsS3URI(root) {
		if r.s3 == nil {
			return nil, ErrS3NotConfigured
		}
		return r.s3.List(ctx, root)
	}
	return r.fs.List(ctx, root)
}

func (r *Router) Load(ctx context.Context, ref string) ([]domain.RawDocument, error) {
	if IsS3URI(ref) {
		if r.s3 == nil {
			return nil, domain.NewLoadError(ref, ErrS3NotConfigured)
		}
		return r.s3.Load(ctx, ref)
	}
	return r.fs.Load(ctx, ref)
}
