package main

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lectern/internal/catalog"
	"lectern/internal/testsupport"
)

func TestAudiobookAddQueuesJob(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := filepath.Join(env.baseDir, "The Long Road.mp3")
	testsupport.WriteFile(t, audio, 8192)

	out, _, err := runCLI(t, env, "audiobook", "add", audio, "--author", "M. Hale")
	require.NoError(t, err)
	require.Contains(t, out, `Added audiobook 1 "The Long Road"`)
	require.Contains(t, out, "Queued job 1")

	store := env.openStore(t)
	job, err := store.GetJob(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, catalog.JobPending, job.Status)
	require.EqualValues(t, 8192, job.Metadata.Int64(catalog.MetaFileSize))

	out, _, err = runCLI(t, env, "audiobook", "show", "1")
	require.NoError(t, err)
	require.Contains(t, out, "The Long Road")
	require.Contains(t, out, "M. Hale")
	require.Contains(t, out, "Active job")

	out, _, err = runCLI(t, env, "audiobook", "list")
	require.NoError(t, err)
	require.Contains(t, out, "The Long Road")
	require.Contains(t, out, "M. Hale")
	require.Contains(t, out, "8.0 KiB")
}

func TestJobsListShowAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.openStore(t)
	book := testsupport.MustCreateAudiobook(t, store, "Harbor Lights")
	job := testsupport.MustCreateJob(t, store, book.ID, nil)

	out, _, err := runCLI(t, env, "jobs", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Pending")
	require.Contains(t, out, strconv.FormatInt(job.ID, 10))

	out, _, err = runCLI(t, env, "jobs", "list", "--status", "completed")
	require.NoError(t, err)
	require.Contains(t, out, "No jobs found")

	_, _, err = runCLI(t, env, "jobs", "list", "--status", "bogus")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown status")

	out, _, err = runCLI(t, env, "jobs", "show", strconv.FormatInt(job.ID, 10))
	require.NoError(t, err)
	require.Contains(t, out, "Audiobook")
	require.Contains(t, out, "Pending")

	out, _, err = runCLI(t, env, "jobs", "status")
	require.NoError(t, err)
	require.Contains(t, out, "== Jobs ==")
	require.Contains(t, out, "Pending:")
	require.NotContains(t, out, "\x1b[")
}

func TestJobsCancelThenRetry(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.openStore(t)
	book := testsupport.MustCreateAudiobook(t, store, "Night Ferry")
	job := testsupport.MustCreateJob(t, store, book.ID, nil)
	id := strconv.FormatInt(job.ID, 10)

	out, _, err := runCLI(t, env, "jobs", "cancel", id)
	require.NoError(t, err)
	require.Contains(t, out, "cancelled")

	_, _, err = runCLI(t, env, "jobs", "cancel", id)
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrInvalidTransition)

	out, _, err = runCLI(t, env, "jobs", "retry", id)
	require.NoError(t, err)
	require.Contains(t, out, "reset to pending")

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobPending, got.Status)
	require.EqualValues(t, 1, got.Metadata.Int64(catalog.MetaRetryCount))
}

func TestJobsCreateRequiresForceWhenActive(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := filepath.Join(env.baseDir, "ferry.mp3")
	testsupport.WriteFile(t, audio, 4096)
	_, _, err := runCLI(t, env, "audiobook", "add", audio, "--title", "Ferry")
	require.NoError(t, err)

	_, _, err = runCLI(t, env, "jobs", "create", "1")
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrActiveJobExists)

	out, _, err := runCLI(t, env, "jobs", "create", "1", "--force")
	require.NoError(t, err)
	require.Contains(t, out, "Queued job 2 for audiobook 1")

	store := env.openStore(t)
	first, err := store.GetJob(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, catalog.JobFailed, first.Status)
}

func TestJobsExportWritesWorkbook(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.openStore(t)
	for _, title := range []string{"One", "Two"} {
		book := testsupport.MustCreateAudiobook(t, store, title)
		testsupport.MustCreateJob(t, store, book.ID, nil)
	}

	target := filepath.Join(env.baseDir, "jobs.xlsx")
	out, _, err := runCLI(t, env, "jobs", "export", "--output", target)
	require.NoError(t, err)
	require.Contains(t, out, "Exported 2 jobs")

	f, err := excelize.OpenFile(target)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 42 ", "job")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	for _, raw := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(raw, "job")
		require.Error(t, err, raw)
	}
}

func TestJobStatusColouring(t *testing.T) {
	require.Equal(t, "Failed", formatJobStatus("failed", false))
	require.Equal(t, ansiRed+"Failed"+ansiReset, formatJobStatus("failed", true))
	require.Equal(t, ansiGreen+"Completed"+ansiReset, formatJobStatus("completed", true))
	require.Equal(t, ansiBlue+"Pending"+ansiReset, formatJobStatus("pending", true))
	require.Equal(t, ansiYellow+"Generating Content"+ansiReset, formatJobStatus("generating_content", true))

	rows := buildStatusCountRows(map[string]int{"failed": 2}, true)
	require.Len(t, rows, len(catalog.AllJobStatuses()))
	last := rows[len(rows)-1]
	require.Equal(t, []string{ansiRed + "Failed" + ansiReset, "2"}, last)
}
