package testsupport

import (
	"context"
	"os"
	"sync"
	"testing"

	"lectern/internal/config"
	"lectern/internal/services/llm"
	"lectern/internal/storage"
)

// FakeTranscriber returns a canned transcript or error and counts calls.
type FakeTranscriber struct {
	mu     sync.Mutex
	Result llm.Transcript
	Err    error
	Calls  int
	Paths  []string
}

func (f *FakeTranscriber) Transcribe(_ context.Context, path string) (llm.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Paths = append(f.Paths, path)
	if f.Err != nil {
		return llm.Transcript{}, f.Err
	}
	return f.Result, nil
}

// CallCount returns the number of Transcribe calls so far.
func (f *FakeTranscriber) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// FakeGenerator returns a canned content reply or error.
type FakeGenerator struct {
	mu     sync.Mutex
	Result llm.Generated
	Err    error
	Calls  int
}

func (f *FakeGenerator) Generate(_ context.Context, _, _ string) (llm.Generated, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return llm.Generated{}, f.Err
	}
	return f.Result, nil
}

// CallCount returns the number of Generate calls so far.
func (f *FakeGenerator) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// NewFSObjectStore returns a filesystem object store rooted in the config's storage dir.
func NewFSObjectStore(t testing.TB, cfg *config.Config) *storage.FSStore {
	t.Helper()
	if err := os.MkdirAll(cfg.Paths.StorageDir, 0o755); err != nil {
		t.Fatalf("mkdir storage: %v", err)
	}
	return storage.NewFSStore(cfg.Paths.StorageDir, cfg.Storage.PublicBaseURL, storage.NewSigner(cfg.Storage.SigningSecret))
}

// PutAudio stores a generated audio file of size bytes under bucket/key.
func PutAudio(t testing.TB, store storage.ObjectStore, bucket, key string, size int64) storage.ObjectInfo {
	t.Helper()
	src := t.TempDir() + "/upload.mp3"
	WriteFile(t, src, size)
	f, err := os.Open(src)
	if err != nil {
		t.Fatalf("open %s: %v", src, err)
	}
	defer f.Close()
	info, err := store.Put(context.Background(), bucket, key, f)
	if err != nil {
		t.Fatalf("put %s/%s: %v", bucket, key, err)
	}
	return info
}
