package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/logging"
)

func TestCreateRunDirIsUnique(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	a, err := CreateRunDir(root, 3, now)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	b, err := CreateRunDir(root, 3, now)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct directories, got %q twice", a)
	}
	if !strings.HasPrefix(filepath.Base(a), "job-3-") {
		t.Fatalf("unexpected name %q", a)
	}
}

func TestSweepRemovesOnlyOldRunDirs(t *testing.T) {
	root := t.TempDir()
	old, err := CreateRunDir(root, 1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	recent, err := CreateRunDir(root, 2, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	foreign := filepath.Join(root, "keep-me")
	if err := os.Mkdir(foreign, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(foreign, past, past); err != nil {
		t.Fatal(err)
	}

	result := Sweep(context.Background(), root, time.Now().Add(-time.Hour), logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("removed = %v, want [%s]", result.Removed, old)
	}
	for _, dir := range []string{recent, foreign} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("%s should remain: %v", dir, err)
		}
	}
}

func TestSweepMissingRoot(t *testing.T) {
	for _, root := range []string{"", "  ", filepath.Join(t.TempDir(), "missing")} {
		result := Sweep(context.Background(), root, time.Now(), nil)
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Fatalf("expected empty result for %q, got %+v", root, result)
		}
	}
}
