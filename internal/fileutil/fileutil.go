package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteResult describes a completed stream write.
type WriteResult struct {
	Bytes  int64
	SHA256 string
}

// WriteStream copies r into dst through a temporary sibling file and renames it
// into place once fully written, so readers never observe a partial file.
func WriteStream(dst string, r io.Reader, mode os.FileMode) (WriteResult, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return WriteResult{}, err
	}
	if err := tmp.Chmod(mode); err != nil {
		return WriteResult{}, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return WriteResult{}, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return WriteResult{}, fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return WriteResult{Bytes: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}
