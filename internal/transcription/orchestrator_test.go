package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"lectern/internal/audio"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
	"lectern/internal/storage"
	"lectern/internal/testsupport"
)

type fakeTranscriber struct {
	calls    int
	seenPath string
	text     string
	err      error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (llm.Transcript, error) {
	f.calls++
	f.seenPath = path
	if _, err := os.Stat(path); err != nil {
		return llm.Transcript{}, err
	}
	if f.err != nil {
		return llm.Transcript{}, f.err
	}
	return llm.Transcript{Text: f.text, DurationSeconds: 61, Language: "english"}, nil
}

type progressEvent struct {
	phase   Phase
	percent int
}

func setup(t *testing.T, size int64, client *fakeTranscriber) (*Orchestrator, string, *[]progressEvent) {
	t.Helper()
	base := t.TempDir()
	storageRoot := filepath.Join(base, "storage")
	testsupport.WriteFile(t, filepath.Join(storageRoot, "audiobooks", "uploads", "book.mp3"), size)
	store := storage.NewFSStore(storageRoot, "http://localhost/files", storage.NewSigner("s"))
	scratch := filepath.Join(base, "scratch")
	orch := NewOrchestrator(store, audio.NewValidator(audio.DefaultMaxBytes, nil), client, scratch, logging.NewNop())
	events := &[]progressEvent{}
	return orch, scratch, events
}

func recorder(events *[]progressEvent) Observer {
	return ObserverFunc(func(phase Phase, _ string, percent int) {
		*events = append(*events, progressEvent{phase, percent})
	})
}

func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch not cleaned: %v", entries)
	}
}

func TestTranscribeFromStorageSuccess(t *testing.T) {
	client := &fakeTranscriber{text: "It was a bright cold day in April"}
	orch, scratch, events := setup(t, 10*1024*1024, client)

	result, err := orch.TranscribeFromStorage(context.Background(), "audiobooks", "uploads/book.mp3", 7, recorder(events))
	if err != nil {
		t.Fatalf("TranscribeFromStorage: %v", err)
	}
	if result.Language != "en" {
		t.Fatalf("language = %q, want en", result.Language)
	}
	if result.WordCount != 8 || result.Confidence != 1.0 || result.DurationSeconds != 61 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.OriginalFileSize != 10*1024*1024 || result.Format != "mp3" {
		t.Fatalf("unexpected file metadata: %+v", result)
	}
	if !strings.Contains(client.seenPath, "job-7-") {
		t.Fatalf("scratch path not keyed by job: %s", client.seenPath)
	}

	wantPhases := []Phase{PhaseDownloading, PhaseDownloading, PhaseValidating, PhaseValidating, PhaseTranscribing, PhaseTranscribing, PhaseComplete}
	if len(*events) != len(wantPhases) {
		t.Fatalf("events = %+v", *events)
	}
	last := 0
	for i, ev := range *events {
		if ev.phase != wantPhases[i] {
			t.Fatalf("event %d phase = %s, want %s", i, ev.phase, wantPhases[i])
		}
		if ev.percent < last {
			t.Fatalf("progress went backwards: %+v", *events)
		}
		last = ev.percent
	}
	assertScratchEmpty(t, scratch)
}

func TestTranscribeFromStorageRejectsOversizedFile(t *testing.T) {
	client := &fakeTranscriber{text: "never"}
	orch, scratch, events := setup(t, 26*1024*1024, client)

	var messages []string
	observer := ObserverFunc(func(phase Phase, message string, percent int) {
		messages = append(messages, message)
		recorder(events).OnProgress(phase, message, percent)
	})
	_, err := orch.TranscribeFromStorage(context.Background(), "audiobooks", "uploads/book.mp3", 1, observer)
	if !errors.Is(err, audio.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	want := fmt.Sprintf("Downloaded %d bytes", audio.DefaultMaxBytes+1)
	if !slices.Contains(messages, want) {
		t.Fatalf("download was not cut at the size limit: %q", messages)
	}
	if client.calls != 0 {
		t.Fatalf("transcriber called %d times", client.calls)
	}
	if got := (*events)[len(*events)-1]; got.phase != PhaseError {
		t.Fatalf("last event = %+v, want error phase", got)
	}
	assertScratchEmpty(t, scratch)
}

func TestTranscribeFromStorageMissingObject(t *testing.T) {
	client := &fakeTranscriber{}
	orch, scratch, _ := setup(t, 1024, client)

	_, err := orch.TranscribeFromStorage(context.Background(), "audiobooks", "uploads/missing.mp3", 1, nil)
	if !errors.Is(err, storage.ErrObjectNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if services.Details(err).Stage != string(PhaseDownloading) {
		t.Fatalf("unexpected stage: %+v", services.Details(err))
	}
	assertScratchEmpty(t, scratch)
}

func TestTranscribeFromStoragePreservesClientError(t *testing.T) {
	quota := services.Wrap(services.ErrQuotaExceeded, "llm", "transcribe", "quota", nil)
	client := &fakeTranscriber{err: quota}
	orch, scratch, _ := setup(t, 1024, client)

	_, err := orch.TranscribeFromStorage(context.Background(), "audiobooks", "uploads/book.mp3", 1, nil)
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota error preserved, got %v", err)
	}
	if services.Details(err).Kind != services.KindQuotaExceeded {
		t.Fatalf("kind = %s", services.Details(err).Kind)
	}
	assertScratchEmpty(t, scratch)
}
