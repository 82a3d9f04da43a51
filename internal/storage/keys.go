package storage

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// CleanKey validates a bucket and key pair. Keys are slash-separated and may
// not escape the bucket.
func CleanKey(bucket, key string) (string, string, error) {
	bucket = strings.TrimSpace(bucket)
	if !bucketPattern.MatchString(bucket) {
		return "", "", ErrInvalidKey
	}
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", "", ErrInvalidKey
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", "", ErrInvalidKey
		}
	}
	return bucket, cleaned, nil
}

// NewUploadKey returns a unique key for an uploaded file, keeping a sanitized
// version of its name for readability.
func NewUploadKey(fileName string) string {
	base := filepath.Base(strings.TrimSpace(fileName))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "-"), "-.")
	if base == "" {
		base = "audio"
	}
	return "uploads/" + uuid.NewString() + "/" + base
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func objectURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + escapeKey(key)
}
