package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"lectern/internal/config"
	"lectern/internal/fileutil"
	"lectern/internal/services"
)

var (
	ErrObjectNotFound = fmt.Errorf("object %w", services.ErrNotFound)
	ErrInvalidKey     = fmt.Errorf("%w: invalid object key", services.ErrValidation)
	ErrReadOnly       = errors.New("object store is read-only")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket  string
	Key     string
	Size    int64
	SHA256  string
	ModTime time.Time
}

// ObjectStore is the upload/download/URL contract the pipeline consumes.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader) (ObjectInfo, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
	SignedURL(bucket, key string, ttl time.Duration) (string, error)
}

// Download copies an object to dst atomically and returns the bytes written.
// A positive maxBytes stops the copy one byte past the limit, so callers can
// still tell an oversized object apart without storing all of it.
func Download(ctx context.Context, store ObjectStore, bucket, key, dst string, maxBytes int64) (ObjectInfo, error) {
	rc, info, err := store.Open(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer rc.Close()

	var src io.Reader = rc
	if maxBytes > 0 {
		src = io.LimitReader(rc, maxBytes+1)
	}
	res, err := fileutil.WriteStream(dst, contextReader{ctx: ctx, r: src}, 0o644)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	info.Size = res.Bytes
	info.SHA256 = res.SHA256
	return info, nil
}

// New builds the configured backend.
func New(cfg *config.Config) (ObjectStore, error) {
	signer := NewSigner(cfg.Storage.SigningSecret)
	switch cfg.Storage.Backend {
	case config.StorageBackendHTTP:
		return NewHTTPStore(cfg.Storage.HTTPBaseURL, cfg.Storage.PublicBaseURL, signer,
			WithRetry(cfg.Retry.MaxAttempts, cfg.RetryBaseDelay(), cfg.RetryMaxDelay()),
			WithTimeout(cfg.OpenAITimeout()),
		)
	default:
		if err := os.MkdirAll(cfg.Paths.StorageDir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		return NewFSStore(cfg.Paths.StorageDir, cfg.Storage.PublicBaseURL, signer), nil
	}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
