package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"lectern/internal/fileutil"
)

// FSStore keeps objects on the local filesystem, one directory per bucket.
type FSStore struct {
	root       string
	publicBase string
	signer     *Signer
}

// NewFSStore creates a store rooted at root. publicBase is the URL prefix the
// daemon serves objects under.
func NewFSStore(root, publicBase string, signer *Signer) *FSStore {
	return &FSStore{root: root, publicBase: publicBase, signer: signer}
}

func (s *FSStore) objectPath(bucket, key string) (string, string, string, error) {
	bucket, key, err := CleanKey(bucket, key)
	if err != nil {
		return "", "", "", err
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(key)), bucket, key, nil
}

// Put writes r to bucket/key, replacing any existing object.
func (s *FSStore) Put(ctx context.Context, bucket, key string, r io.Reader) (ObjectInfo, error) {
	target, bucket, key, err := s.objectPath(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	res, err := fileutil.WriteStream(target, contextReader{ctx: ctx, r: r}, 0o644)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{Bucket: bucket, Key: key, Size: res.Bytes, SHA256: res.SHA256, ModTime: time.Now()}, nil
}

// Open returns a reader for bucket/key.
func (s *FSStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	target, _, _, _ := s.objectPath(bucket, key)
	f, err := os.Open(target)
	if err != nil {
		return nil, ObjectInfo{}, mapFSError(bucket, key, err)
	}
	return f, info, nil
}

// Stat describes bucket/key without reading it.
func (s *FSStore) Stat(_ context.Context, bucket, key string) (ObjectInfo, error) {
	target, bucket, key, err := s.objectPath(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	st, err := os.Stat(target)
	if err != nil {
		return ObjectInfo{}, mapFSError(bucket, key, err)
	}
	if st.IsDir() {
		return ObjectInfo{}, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return ObjectInfo{Bucket: bucket, Key: key, Size: st.Size(), ModTime: st.ModTime()}, nil
}

// Delete removes bucket/key. Missing objects are not an error.
func (s *FSStore) Delete(_ context.Context, bucket, key string) error {
	target, _, _, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PublicURL returns the unsigned object URL.
func (s *FSStore) PublicURL(bucket, key string) string {
	return objectURL(s.publicBase, bucket, key)
}

// SignedURL returns a download URL valid for ttl.
func (s *FSStore) SignedURL(bucket, key string, ttl time.Duration) (string, error) {
	if _, _, err := CleanKey(bucket, key); err != nil {
		return "", err
	}
	return signedURL(s.signer, s.publicBase, bucket, key, ttl)
}

func mapFSError(bucket, key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return fmt.Errorf("open %s/%s: %w", bucket, key, err)
}
