package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lectern/internal/logging"
)

const runDirPrefix = "job-"

// CreateRunDir makes a directory under root unique to jobID and this run, so a
// retried job never shares files with an earlier attempt.
func CreateRunDir(root string, jobID int64, now time.Time) (string, error) {
	name := fmt.Sprintf("%s%d-%d-%s", runDirPrefix, jobID, now.UnixNano(), uuid.NewString()[:8])
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SweepResult lists what Sweep removed and what it could not.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a directory with its removal error.
type SweepError struct {
	Path string
	Err  error
}

// Sweep removes run directories under root last modified before cutoff.
// Entries not created by CreateRunDir are left alone.
func Sweep(ctx context.Context, root string, cutoff time.Time, logger *slog.Logger) SweepResult {
	var result SweepResult
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: root, Err: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), runDirPrefix) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dir, Err: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dir, Err: err})
			logging.WarnWithContext(logger, "failed to remove stale scratch directory", "scratch_sweep_failed",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir)
	}

	if len(result.Removed) > 0 {
		logger.Info("removed stale scratch directories",
			logging.Int("count", len(result.Removed)),
			logging.String("root", root),
			logging.String(logging.FieldEventType, "scratch_sweep"),
		)
	}
	return result
}
