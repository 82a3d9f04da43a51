package testsupport

import (
	"context"
	"testing"

	"lectern/internal/catalog"
	"lectern/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustCreateAudiobook inserts a draft audiobook.
func MustCreateAudiobook(t testing.TB, store *catalog.Store, title string) *catalog.Audiobook {
	t.Helper()
	book, err := store.CreateAudiobook(context.Background(), title, "Test Author")
	if err != nil {
		t.Fatalf("CreateAudiobook: %v", err)
	}
	return book
}

// MustCreateJob inserts a pending job for the audiobook.
func MustCreateJob(t testing.TB, store *catalog.Store, audiobookID int64, meta catalog.Metadata) *catalog.Job {
	t.Helper()
	job, err := store.CreateJob(context.Background(), catalog.NewJob{AudiobookID: audiobookID, Metadata: meta})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}
