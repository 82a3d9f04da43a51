package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"lectern/internal/catalog"
	"lectern/internal/services"
	"lectern/internal/testsupport"
)

func TestCreateJobRejectsSecondActiveJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, store, "Dune")

	job := testsupport.MustCreateJob(t, store, book.ID, catalog.Metadata{catalog.MetaFileName: "dune.mp3"})
	if job.Status != catalog.JobPending || job.Progress != 0 {
		t.Fatalf("unexpected new job: %+v", job)
	}
	if job.CompletedAt != nil {
		t.Fatal("pending job must not have completed_at")
	}
	if job.Metadata.String(catalog.MetaFileName) != "dune.mp3" {
		t.Fatalf("metadata not stored: %#v", job.Metadata)
	}

	_, err := store.CreateJob(ctx, catalog.NewJob{AudiobookID: book.ID})
	if !errors.Is(err, catalog.ErrActiveJobExists) {
		t.Fatalf("expected ErrActiveJobExists, got %v", err)
	}
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict marker, got %v", err)
	}
}

func TestClaimNextPendingIsExclusiveAndOrdered(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	first := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "A").ID, nil)
	second := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "B").ID, nil)

	claimed, err := store.ClaimNextPending(ctx, "run-1")
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job %d, got %+v", first.ID, claimed)
	}
	if claimed.RunID != "run-1" || claimed.Metadata.Int64(catalog.MetaRunAttempts) != 1 {
		t.Fatalf("claim did not stamp run: %+v", claimed)
	}

	next, err := store.ClaimNextPending(ctx, "run-2")
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected job %d, got %+v", second.ID, next)
	}

	none, err := store.ClaimNextPending(ctx, "run-3")
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no job, got %+v", none)
	}
}

func TestProgressIsClampedAndMonotonic(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "A").ID, nil)
	claimed, err := store.ClaimNextPending(ctx, "run-1")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	steps := []struct {
		status catalog.JobStatus
		value  int
		want   int
	}{
		{catalog.JobDownloading, 5, 5},
		{catalog.JobTranscribing, 59, 59},
		{catalog.JobTranscribing, 30, 59},
		{catalog.JobProcessing, 250, 100},
	}
	for _, step := range steps {
		if err := store.UpdateJobProgress(ctx, job.ID, "run-1", step.status, step.value, catalog.Metadata{catalog.MetaPhase: string(step.status)}); err != nil {
			t.Fatalf("UpdateJobProgress(%d): %v", step.value, err)
		}
		got, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Progress != step.want {
			t.Fatalf("progress after %d = %d, want %d", step.value, got.Progress, step.want)
		}
		if got.Status != step.status {
			t.Fatalf("status = %s, want %s", got.Status, step.status)
		}
	}
}

func TestMetadataMergesNestedPhases(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "A").ID, catalog.Metadata{
		catalog.MetaFileName: "a.mp3",
	})
	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	patches := []catalog.Metadata{
		{catalog.MetaPhases: map[string]any{"downloading": "t1"}},
		{catalog.MetaPhases: map[string]any{"transcribing": "t2"}},
	}
	for _, patch := range patches {
		if err := store.UpdateJobProgress(ctx, job.ID, "run-1", catalog.JobTranscribing, 10, patch); err != nil {
			t.Fatalf("UpdateJobProgress: %v", err)
		}
	}
	if err := store.CompleteJob(ctx, job.ID, "run-1", catalog.Metadata{catalog.MetaWordCount: 42}); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	phases, ok := got.Metadata[catalog.MetaPhases].(map[string]any)
	if !ok || phases["downloading"] != "t1" || phases["transcribing"] != "t2" {
		t.Fatalf("phase history not merged: %#v", got.Metadata)
	}
	if got.Metadata.String(catalog.MetaFileName) != "a.mp3" || got.Metadata.Int64(catalog.MetaWordCount) != 42 {
		t.Fatalf("metadata overwritten: %#v", got.Metadata)
	}
	if got.Status != catalog.JobCompleted || got.Progress != 100 || got.CompletedAt == nil {
		t.Fatalf("unexpected completed job: %+v", got)
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, store, "A")
	job := testsupport.MustCreateJob(t, store, book.ID, nil)

	if _, err := store.RetryJob(ctx, job.ID); !errors.Is(err, catalog.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending job, got %v", err)
	}

	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.UpdateJobProgress(ctx, job.ID, "run-1", catalog.JobTranscribing, 40, nil); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if err := store.FailJob(ctx, job.ID, "run-1", "remote exploded", nil); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	failed, _ := store.GetJob(ctx, job.ID)
	if failed.Progress != 40 || failed.CompletedAt == nil || failed.ErrorMessage != "remote exploded" {
		t.Fatalf("unexpected failed job: %+v", failed)
	}

	retried, err := store.RetryJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if retried.Status != catalog.JobPending || retried.Progress != 0 || retried.ErrorMessage != "" || retried.CompletedAt != nil || retried.RunID != "" {
		t.Fatalf("retry did not reset job: %+v", retried)
	}
	if retried.Metadata.Int64(catalog.MetaRetryCount) != 1 {
		t.Fatalf("retry count not recorded: %#v", retried.Metadata)
	}
	updatedBook, _ := store.GetAudiobook(ctx, book.ID)
	if updatedBook.Status != catalog.AudiobookProcessing {
		t.Fatalf("audiobook status = %s, want processing", updatedBook.Status)
	}
}

func TestCancelRejectsLateWrites(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, store, "A")
	job := testsupport.MustCreateJob(t, store, book.ID, nil)
	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	cancelled, err := store.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if cancelled.Status != catalog.JobFailed || cancelled.ErrorMessage != catalog.CancelledByAdminMessage || cancelled.CompletedAt == nil {
		t.Fatalf("unexpected cancelled job: %+v", cancelled)
	}
	reverted, _ := store.GetAudiobook(ctx, book.ID)
	if reverted.Status != catalog.AudiobookDraft {
		t.Fatalf("audiobook status = %s, want draft", reverted.Status)
	}

	if _, err := store.SaveTranscriptionForRun(ctx, job.ID, "run-1", catalog.Transcription{FullText: "late"}); !errors.Is(err, catalog.ErrJobNotActive) {
		t.Fatalf("expected late transcription to be rejected, got %v", err)
	}
	err = store.ApplyGeneratedContentForRun(ctx, job.ID, "run-1", catalog.GeneratedContent{Description: "late"})
	if !errors.Is(err, catalog.ErrJobNotActive) {
		t.Fatalf("expected late content to be rejected, got %v", err)
	}
	if err := store.CompleteJob(ctx, job.ID, "run-1", nil); !errors.Is(err, catalog.ErrJobNotActive) {
		t.Fatalf("expected late completion to be rejected, got %v", err)
	}
	if _, err := store.CancelJob(ctx, job.ID); !errors.Is(err, catalog.ErrInvalidTransition) {
		t.Fatalf("expected second cancel to be rejected, got %v", err)
	}
}

func TestCancelRejectedWhileSaving(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "A").ID, nil)
	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.UpdateJobProgress(ctx, job.ID, "run-1", catalog.JobProcessing, 70, nil); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := store.CancelJob(ctx, job.ID); !errors.Is(err, catalog.ErrInvalidTransition) {
		t.Fatalf("expected processing job to be non-cancellable, got %v", err)
	}
}

func TestTranscriptionUpsertAndContentApply(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, store, "A")
	job := testsupport.MustCreateJob(t, store, book.ID, nil)
	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	first, err := store.SaveTranscriptionForRun(ctx, job.ID, "run-1", catalog.Transcription{FullText: "one two", WordCount: 2, ConfidenceScore: 0.9})
	if err != nil {
		t.Fatalf("SaveTranscriptionForRun: %v", err)
	}
	second, err := store.SaveTranscriptionForRun(ctx, job.ID, "run-1", catalog.Transcription{FullText: "one two three", WordCount: 3, ConfidenceScore: 0.9})
	if err != nil {
		t.Fatalf("SaveTranscriptionForRun: %v", err)
	}
	if first.ID != second.ID || second.WordCount != 3 {
		t.Fatalf("expected upsert, got %+v then %+v", first, second)
	}

	content := catalog.GeneratedContent{
		Description: "A sweeping saga.",
		Summary:     "Spice.",
		Categories:  []string{"Science Fiction", "Adventure"},
		Keywords:    []string{"desert"},
	}
	if err := store.ApplyGeneratedContentForRun(ctx, job.ID, "run-1", content); err != nil {
		t.Fatalf("ApplyGeneratedContentForRun: %v", err)
	}
	got, err := store.GetAudiobook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetAudiobook: %v", err)
	}
	if got.Status != catalog.AudiobookActive || got.Description != content.Description || len(got.Categories) != 2 || got.Keywords[0] != "desert" {
		t.Fatalf("unexpected audiobook: %+v", got)
	}
}

func TestReclaimStaleRequeuesThenFails(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "A").ID, nil)

	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.UpdateJobProgress(ctx, job.ID, "run-1", catalog.JobTranscribing, 30, nil); err != nil {
		t.Fatalf("progress: %v", err)
	}

	future := time.Now().Add(time.Hour)
	res, err := store.ReclaimStale(ctx, future, 2)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(res.Requeued) != 1 || res.Requeued[0] != job.ID {
		t.Fatalf("expected job requeued, got %+v", res)
	}
	requeued, _ := store.GetJob(ctx, job.ID)
	if requeued.Status != catalog.JobPending || requeued.Progress != 30 || requeued.RunID != "" {
		t.Fatalf("unexpected requeued job: %+v", requeued)
	}
	if err := store.Heartbeat(ctx, job.ID, "run-1"); !errors.Is(err, catalog.ErrJobNotActive) {
		t.Fatalf("old run heartbeat should be rejected, got %v", err)
	}

	if _, err := store.ClaimNextPending(ctx, "run-2"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	res, err = store.ReclaimStale(ctx, future, 2)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("expected job failed after max attempts, got %+v", res)
	}
	failed, _ := store.GetJob(ctx, job.ID)
	if failed.Status != catalog.JobFailed || failed.CompletedAt == nil {
		t.Fatalf("unexpected failed job: %+v", failed)
	}
}

func TestListJobsFiltersAndCounts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, store, "A")

	for i := 0; i < 3; i++ {
		job := testsupport.MustCreateJob(t, store, book.ID, nil)
		runID := fmt.Sprintf("run-%d", i)
		if _, err := store.ClaimNextPending(ctx, runID); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := store.FailJob(ctx, job.ID, runID, "boom", nil); err != nil {
			t.Fatalf("FailJob: %v", err)
		}
	}
	testsupport.MustCreateJob(t, store, book.ID, nil)
	testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "B").ID, nil)

	page, err := store.ListJobs(ctx, catalog.JobFilter{AudiobookID: book.ID, Statuses: []catalog.JobStatus{catalog.JobFailed}, Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if page.Total != 3 || len(page.Jobs) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", page.Total, len(page.Jobs))
	}
	if page.Counts[catalog.JobFailed] != 3 || page.Counts[catalog.JobPending] != 1 {
		t.Fatalf("unexpected counts: %#v", page.Counts)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 5 || health.Failed != 3 || health.Pending != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestForceFailActive(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	book := testsupport.MustCreateAudiobook(t, store, "A")
	job := testsupport.MustCreateJob(t, store, book.ID, nil)

	id, err := store.ForceFailActive(ctx, book.ID, "")
	if err != nil || id != job.ID {
		t.Fatalf("ForceFailActive = %d, %v", id, err)
	}
	if _, err := store.CreateJob(ctx, catalog.NewJob{AudiobookID: book.ID}); err != nil {
		t.Fatalf("expected new job after force, got %v", err)
	}
}

func TestGetMissingRecords(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.GetJob(ctx, 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetAudiobook(ctx, 999); !errors.Is(err, catalog.ErrAudiobookNotFound) {
		t.Fatalf("expected audiobook not found, got %v", err)
	}
}

func TestMergeJobMetadataConcurrentPatchesAllLand(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, testsupport.MustCreateAudiobook(t, store, "A").ID, catalog.Metadata{catalog.MetaFileName: "a.mp3"})
	if _, err := store.ClaimNextPending(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.MergeJobMetadata(ctx, job.ID, "run-1", catalog.Metadata{fmt.Sprintf("k%d", i): i})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("MergeJobMetadata: %v", err)
		}
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	for i := 0; i < writers; i++ {
		if got.Metadata.Int64(fmt.Sprintf("k%d", i)) != int64(i) {
			t.Fatalf("patch k%d lost: %#v", i, got.Metadata)
		}
	}
	if got.Metadata.String(catalog.MetaFileName) != "a.mp3" {
		t.Fatalf("existing metadata lost: %#v", got.Metadata)
	}
	if got.Status != catalog.JobPending || got.Progress != 0 {
		t.Fatalf("merge touched status or progress: %+v", got)
	}
	if err := store.MergeJobMetadata(ctx, job.ID, "run-2", catalog.Metadata{"late": true}); !errors.Is(err, catalog.ErrJobNotActive) {
		t.Fatalf("expected foreign run to be rejected, got %v", err)
	}
}

func TestListAudiobooksNewestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	first := testsupport.MustCreateAudiobook(t, store, "First")
	second := testsupport.MustCreateAudiobook(t, store, "Second")

	books, err := store.ListAudiobooks(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListAudiobooks: %v", err)
	}
	if len(books) != 2 || books[0].ID != second.ID || books[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", books)
	}
	limited, err := store.ListAudiobooks(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAudiobooks: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d rows", len(limited))
	}
}
