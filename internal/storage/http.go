package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"lectern/internal/services"
)

// HTTPStore reads objects from an HTTP origin. Writes are not supported.
type HTTPStore struct {
	baseURL     string
	publicBase  string
	signer      *Signer
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// HTTPOption customizes an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithRetry sets the download retry policy.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		s.maxAttempts = attempts
		s.baseDelay = baseDelay
		s.maxDelay = maxDelay
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		if client != nil {
			s.client = client
		}
	}
}

// NewHTTPStore creates a read-only store for baseURL.
func NewHTTPStore(baseURL, publicBase string, signer *Signer, opts ...HTTPOption) (*HTTPStore, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "new http store", "storage.http_base_url is required for the http backend", nil)
	}
	if strings.TrimSpace(publicBase) == "" {
		publicBase = baseURL
	}
	store := &HTTPStore{
		baseURL:     baseURL,
		publicBase:  publicBase,
		signer:      signer,
		client:      &http.Client{Timeout: 2 * time.Minute},
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		maxDelay:    32 * time.Second,
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.maxAttempts < 1 {
		store.maxAttempts = 1
	}
	return store, nil
}

// Put is unsupported.
func (s *HTTPStore) Put(context.Context, string, string, io.Reader) (ObjectInfo, error) {
	return ObjectInfo{}, ErrReadOnly
}

// Delete is unsupported.
func (s *HTTPStore) Delete(context.Context, string, string) error {
	return ErrReadOnly
}

// Open fetches bucket/key, retrying 5xx and network failures.
func (s *HTTPStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	resp, err := s.request(ctx, http.MethodGet, bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return resp.Body, infoFromResponse(bucket, key, resp), nil
}

// Stat issues a HEAD request for bucket/key.
func (s *HTTPStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	resp, err := s.request(ctx, http.MethodHead, bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	_ = resp.Body.Close()
	return infoFromResponse(bucket, key, resp), nil
}

// PublicURL returns the unsigned object URL.
func (s *HTTPStore) PublicURL(bucket, key string) string {
	return objectURL(s.publicBase, bucket, key)
}

// SignedURL returns a signed URL on the public base.
func (s *HTTPStore) SignedURL(bucket, key string, ttl time.Duration) (string, error) {
	if _, _, err := CleanKey(bucket, key); err != nil {
		return "", err
	}
	return signedURL(s.signer, s.publicBase, bucket, key, ttl)
}

func (s *HTTPStore) request(ctx context.Context, method, bucket, key string) (*http.Response, error) {
	bucket, key, err := CleanKey(bucket, key)
	if err != nil {
		return nil, err
	}
	target := objectURL(s.baseURL, bucket, key)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.baseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	if s.maxDelay > 0 {
		bo.MaxInterval = s.maxDelay
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return services.Wrap(services.ErrTransient, "storage", "download", "request failed", err)
		}
		switch {
		case r.StatusCode == http.StatusNotFound:
			_ = r.Body.Close()
			return backoff.Permanent(fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key))
		case r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests:
			_ = r.Body.Close()
			return services.Wrap(services.ErrTransient, "storage", "download", fmt.Sprintf("origin returned http %d", r.StatusCode), nil)
		case r.StatusCode >= 300:
			_ = r.Body.Close()
			return backoff.Permanent(services.Wrap(services.ErrExternalTool, "storage", "download", fmt.Sprintf("origin returned http %d", r.StatusCode), nil))
		}
		resp = r
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "storage", "download", "cancelled", err)
		}
		return nil, err
	}
	return resp, nil
}

func infoFromResponse(bucket, key string, resp *http.Response) ObjectInfo {
	info := ObjectInfo{Bucket: bucket, Key: key, Size: resp.ContentLength}
	if info.Size < 0 {
		info.Size = 0
		if v, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			info.Size = v
		}
	}
	if modified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.ModTime = modified
	}
	return info
}
