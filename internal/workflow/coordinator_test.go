package workflow_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"lectern/internal/audio"
	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/content"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/services/llm"
	"lectern/internal/storage"
	"lectern/internal/testsupport"
	"lectern/internal/transcription"
	"lectern/internal/workflow"
)

const bucket = "audiobooks"

type harness struct {
	cfg         *config.Config
	store       *catalog.Store
	objects     *storage.FSStore
	bus         *events.Bus
	transcriber *testsupport.FakeTranscriber
	generator   *testsupport.FakeGenerator
	coord       *workflow.Coordinator
}

func newHarness(t *testing.T, transcriber transcription.Transcriber) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.Workers = 1

	h := &harness{
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		objects: testsupport.NewFSObjectStore(t, cfg),
		bus:     events.NewBus(200, logging.NewNop()),
		transcriber: &testsupport.FakeTranscriber{Result: llm.Transcript{
			Text:            strings.Repeat("The river carried the story of the valley. ", 40),
			DurationSeconds: 5400,
			Language:        "english",
		}},
		generator: &testsupport.FakeGenerator{Result: llm.Generated{
			Description: "A sweeping story of a valley and its river.",
			Summary:     "A valley story.",
			Categories:  []string{"fiction", "historical fiction"},
		}},
	}
	if transcriber == nil {
		transcriber = h.transcriber
	}
	orchestrator := transcription.NewOrchestrator(h.objects, audio.NewValidator(cfg.Audio.MaxFileBytes, cfg.Audio.Extensions), transcriber, cfg.Paths.ScratchDir, logging.NewNop())
	service := content.NewService(h.generator, content.OptionsFromConfig(cfg), logging.NewNop())
	h.coord = workflow.NewCoordinator(cfg, h.store, h.bus, orchestrator, service, logging.NewNop())
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.coord.Stop)
}

// upload stores a file, attaches it to a new audiobook and fires the upload event.
func (h *harness) upload(t *testing.T, size int64) *catalog.Audiobook {
	t.Helper()
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, h.store, "The Valley")
	key := storage.NewUploadKey("valley.mp3")
	info := testsupport.PutAudio(t, h.objects, bucket, key, size)
	if err := h.store.SetAudiobookFile(ctx, book.ID, bucket, key, h.objects.PublicURL(bucket, key), info.Size); err != nil {
		t.Fatalf("SetAudiobookFile: %v", err)
	}
	h.bus.Publish(ctx, events.Uploaded, events.UploadedPayload{
		AudiobookID: book.ID,
		FileName:    "valley.mp3",
		FileSize:    info.Size,
		FilePath:    key,
		Bucket:      bucket,
	})
	return book
}

func waitForComplete(t *testing.T, ch <-chan events.Event, progress *[]events.ProgressPayload) events.CompletePayload {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case event := <-ch:
			switch payload := event.Payload.(type) {
			case events.ProgressPayload:
				if progress != nil {
					*progress = append(*progress, payload)
				}
			case events.CompletePayload:
				return payload
			}
		case <-timeout:
			t.Fatal("timed out waiting for processing-complete")
		}
	}
}

func TestPipelineCompletesUpload(t *testing.T) {
	h := newHarness(t, nil)
	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	book := h.upload(t, 10*1024*1024)
	var progress []events.ProgressPayload
	done := waitForComplete(t, ch, &progress)
	if !done.Success || done.AudiobookID != book.ID || done.TranscriptionID == 0 {
		t.Fatalf("unexpected completion: %+v", done)
	}

	last := 0
	seen := map[string]bool{}
	for _, p := range progress {
		if p.Progress < last {
			t.Fatalf("progress went backwards: %+v", progress)
		}
		last = p.Progress
		seen[p.Status] = true
	}
	if progress[0].Status != string(catalog.JobDownloading) || progress[0].Progress != 5 {
		t.Fatalf("first update = %+v, want downloading at 5", progress[0])
	}
	for _, status := range []catalog.JobStatus{catalog.JobDownloading, catalog.JobChunking, catalog.JobTranscribing, catalog.JobProcessing, catalog.JobGeneratingContent, catalog.JobCompleted} {
		if !seen[string(status)] {
			t.Fatalf("status %s never reported: %+v", status, progress)
		}
	}
	want := map[catalog.JobStatus]int{catalog.JobGeneratingContent: 75, catalog.JobCompleted: 100}
	for _, p := range progress {
		if w, ok := want[catalog.JobStatus(p.Status)]; ok && p.Progress != w {
			t.Fatalf("%s progress = %d, want %d", p.Status, p.Progress, w)
		}
		if p.Status == string(catalog.JobTranscribing) && (p.Progress < 5 || p.Progress > 65) {
			t.Fatalf("transcribing progress %d outside 5..65", p.Progress)
		}
	}

	job, err := h.store.GetJob(context.Background(), done.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.JobCompleted || job.Progress != 100 || job.CompletedAt == nil {
		t.Fatalf("unexpected job state: %+v", job)
	}
	if job.Metadata.Int64(catalog.MetaTranscriptionID) != done.TranscriptionID {
		t.Fatalf("metadata transcriptionId = %v", job.Metadata[catalog.MetaTranscriptionID])
	}
	if job.Metadata.Int64(catalog.MetaCategoriesGenerated) != 2 {
		t.Fatalf("metadata categoriesGenerated = %v", job.Metadata[catalog.MetaCategoriesGenerated])
	}
	if job.Metadata.String(catalog.MetaLanguage) != "en" {
		t.Fatalf("metadata language = %v", job.Metadata[catalog.MetaLanguage])
	}
	if job.Metadata.String(catalog.MetaFileName) != "valley.mp3" {
		t.Fatalf("upload metadata lost: %+v", job.Metadata)
	}

	updated, err := h.store.GetAudiobook(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("GetAudiobook: %v", err)
	}
	if updated.Status != catalog.AudiobookActive {
		t.Fatalf("audiobook status = %s, want active", updated.Status)
	}
	if len(updated.Categories) != 2 || updated.Categories[0] != "Fiction" || updated.AISummary == "" {
		t.Fatalf("generated content not applied: %+v", updated)
	}
	tr, err := h.store.GetTranscription(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("GetTranscription: %v", err)
	}
	if tr.WordCount == 0 || tr.ConfidenceScore != 1.0 {
		t.Fatalf("unexpected transcription: %+v", tr)
	}
}

func TestPipelineRejectsOversizedFile(t *testing.T) {
	h := newHarness(t, nil)
	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	book := h.upload(t, 26*1024*1024)
	done := waitForComplete(t, ch, nil)
	if done.Success {
		t.Fatalf("expected failure, got %+v", done)
	}
	if h.transcriber.CallCount() != 0 {
		t.Fatalf("transcriber called %d times for oversized file", h.transcriber.CallCount())
	}
	job, err := h.store.GetJob(context.Background(), done.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.JobFailed || job.CompletedAt == nil || !strings.Contains(job.ErrorMessage, "too large") {
		t.Fatalf("unexpected job: %+v", job)
	}
	if _, err := h.store.GetTranscription(context.Background(), book.ID); !errors.Is(err, catalog.ErrTranscriptionNotFound) {
		t.Fatalf("expected no transcription, got %v", err)
	}
	updated, _ := h.store.GetAudiobook(context.Background(), book.ID)
	if updated.Status != catalog.AudiobookProcessing {
		t.Fatalf("audiobook status = %s, want processing", updated.Status)
	}
}

func TestPipelineQuotaFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"},
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithOpenAIBaseURL(server.URL))
	client, err := llm.NewFromConfig(cfg, logging.NewNop(), llm.WithTokenCounter(llm.ApproxCounter{}))
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	h := newHarness(t, client)
	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	h.upload(t, 1024*1024)
	done := waitForComplete(t, ch, nil)
	if done.Success {
		t.Fatalf("expected failure, got %+v", done)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("transcription endpoint called %d times, want 1", got)
	}
	job, err := h.store.GetJob(context.Background(), done.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.JobFailed || !strings.Contains(strings.ToLower(job.ErrorMessage), "quota") {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Metadata.String(catalog.MetaErrorKind) != "quota_exceeded" {
		t.Fatalf("errorKind = %q", job.Metadata.String(catalog.MetaErrorKind))
	}
}

func TestPipelineContentFailureKeepsTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.generator.Err = errors.New("content model unavailable")
	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	book := h.upload(t, 1024*1024)
	done := waitForComplete(t, ch, nil)
	if done.Success || !strings.Contains(done.Error, "content model unavailable") {
		t.Fatalf("expected content failure, got %+v", done)
	}

	ctx := context.Background()
	job, err := h.store.GetJob(ctx, done.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.JobFailed || job.ErrorMessage == "" || job.CompletedAt == nil {
		t.Fatalf("unexpected job state: %+v", job)
	}
	if job.Metadata.String(catalog.MetaErrorKind) == "" {
		t.Fatalf("error kind not recorded: %+v", job.Metadata)
	}
	tr, err := h.store.GetTranscription(ctx, book.ID)
	if err != nil || tr.JobID != job.ID {
		t.Fatalf("transcript should survive content failure: %+v %v", tr, err)
	}
	updated, err := h.store.GetAudiobook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetAudiobook: %v", err)
	}
	if updated.Status != catalog.AudiobookProcessing {
		t.Fatalf("audiobook status = %s, want processing", updated.Status)
	}
	if updated.Description != "" || updated.AISummary != "" || len(updated.Categories) != 0 {
		t.Fatalf("content written despite failure: %+v", updated)
	}
}

func TestPipelineFailsWhenAudiobookMissing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	book := testsupport.MustCreateAudiobook(t, h.store, "Vanished")
	key := storage.NewUploadKey("vanished.mp3")
	testsupport.PutAudio(t, h.objects, bucket, key, 2048)
	job := testsupport.MustCreateJob(t, h.store, book.ID, catalog.Metadata{
		catalog.MetaFilePath: key,
		catalog.MetaBucket:   bucket,
	})

	// Drop the audiobook row behind the store's back, leaving the job orphaned.
	db, err := sql.Open("sqlite", h.store.Path())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if _, err := db.Exec("DELETE FROM audiobooks WHERE id = ?", book.ID); err != nil {
		t.Fatalf("delete audiobook: %v", err)
	}
	_ = db.Close()

	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	done := waitForComplete(t, ch, nil)
	if done.Success || done.JobID != job.ID {
		t.Fatalf("expected failure for job %d, got %+v", job.ID, done)
	}
	final, err := h.store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if final.Status != catalog.JobFailed || !strings.Contains(final.ErrorMessage, "not found") {
		t.Fatalf("unexpected job: %+v", final)
	}
	if h.transcriber.CallCount() != 0 {
		t.Fatalf("transcriber called %d times", h.transcriber.CallCount())
	}
}

func TestPipelineTruncatesMultibyteFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.Err = errors.New(strings.Repeat("é", 800))
	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	h.upload(t, 1024*1024)
	done := waitForComplete(t, ch, nil)
	if done.Success {
		t.Fatalf("expected failure, got %+v", done)
	}
	job, err := h.store.GetJob(context.Background(), done.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if len(job.ErrorMessage) > 1000 || !strings.HasSuffix(job.ErrorMessage, "...") {
		t.Fatalf("error message not truncated: %d bytes", len(job.ErrorMessage))
	}
	if !utf8.ValidString(job.ErrorMessage) || !utf8.ValidString(done.Error) {
		t.Fatalf("truncation split a rune: %q", job.ErrorMessage[len(job.ErrorMessage)-8:])
	}
}

// gatedTranscriber blocks its first call until released.
type gatedTranscriber struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	result  llm.Transcript
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, _ string) (llm.Transcript, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
			return llm.Transcript{}, ctx.Err()
		}
	}
	return g.result, nil
}

func TestCancelDuringRunDiscardsLateResults(t *testing.T) {
	gate := &gatedTranscriber{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result:  llm.Transcript{Text: strings.Repeat("A late transcript. ", 50), DurationSeconds: 600, Language: "english"},
	}
	h := newHarness(t, gate)
	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)
	ctx := context.Background()

	cancelled := h.upload(t, 1024*1024)
	select {
	case <-gate.started:
	case <-time.After(10 * time.Second):
		t.Fatal("transcriber never started")
	}
	active, err := h.store.ActiveJobForAudiobook(ctx, cancelled.ID)
	if err != nil || active == nil {
		t.Fatalf("ActiveJobForAudiobook: %+v %v", active, err)
	}
	if _, err := h.store.CancelJob(ctx, active.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	close(gate.release)

	// A single worker only claims the next job once the cancelled run has returned.
	next := h.upload(t, 1024*1024)
	done := waitForComplete(t, ch, nil)
	if done.AudiobookID != next.ID || !done.Success {
		t.Fatalf("first completion should be the follow-up upload, got %+v", done)
	}

	job, err := h.store.GetJob(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.JobFailed || job.ErrorMessage != catalog.CancelledByAdminMessage {
		t.Fatalf("cancelled job overwritten: %+v", job)
	}
	book, err := h.store.GetAudiobook(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("GetAudiobook: %v", err)
	}
	if book.Status != catalog.AudiobookDraft || book.Description != "" || len(book.Categories) != 0 {
		t.Fatalf("late results applied to cancelled audiobook: %+v", book)
	}
	if _, err := h.store.GetTranscription(ctx, cancelled.ID); !errors.Is(err, catalog.ErrTranscriptionNotFound) {
		t.Fatalf("expected no transcription for cancelled run, got %v", err)
	}
	if got := h.generator.CallCount(); got != 1 {
		t.Fatalf("generator called %d times, want only the follow-up run", got)
	}
}

func TestStartRequeuesOrphanedRuns(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	book := testsupport.MustCreateAudiobook(t, h.store, "Orphan")
	key := storage.NewUploadKey("orphan.mp3")
	testsupport.PutAudio(t, h.objects, bucket, key, 2048)
	job := testsupport.MustCreateJob(t, h.store, book.ID, catalog.Metadata{
		catalog.MetaFilePath: key,
		catalog.MetaBucket:   bucket,
	})
	claimed, err := h.store.ClaimNextPending(ctx, "dead-run")
	if err != nil || claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claim: %v %+v", err, claimed)
	}

	ch, stop := h.bus.Listen(256)
	defer stop()
	h.start(t)

	done := waitForComplete(t, ch, nil)
	if !done.Success || done.JobID != job.ID {
		t.Fatalf("orphaned job not resumed: %+v", done)
	}
	final, _ := h.store.GetJob(ctx, job.ID)
	if final.Metadata.Int64(catalog.MetaRunAttempts) != 2 {
		t.Fatalf("runAttempts = %v, want 2", final.Metadata[catalog.MetaRunAttempts])
	}
}

func TestUploadReusesPendingJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	triggers := workflow.NewTriggers(store, logging.NewNop(), nil)
	book := testsupport.MustCreateAudiobook(t, store, "Twice")

	payload := events.UploadedPayload{AudiobookID: book.ID, FileName: "a.mp3", FilePath: "uploads/a.mp3"}
	first, err := triggers.HandleUploaded(context.Background(), payload)
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := triggers.HandleUploaded(context.Background(), payload)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected pending job reuse, got %d and %d", first.ID, second.ID)
	}
}

func TestRemapProgressAndPhaseStatus(t *testing.T) {
	cases := map[int]int{-5: 5, 0: 5, 50: 35, 100: 65, 140: 65}
	for in, want := range cases {
		if got := workflow.RemapProgress(in); got != want {
			t.Fatalf("RemapProgress(%d) = %d, want %d", in, got, want)
		}
	}
	if status, ok := workflow.StatusForPhase(transcription.PhaseValidating); !ok || status != catalog.JobChunking {
		t.Fatalf("validating maps to %q", status)
	}
	if _, ok := workflow.StatusForPhase(transcription.PhaseError); ok {
		t.Fatal("error phase should not map to a status")
	}
}
