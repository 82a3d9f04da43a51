package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/audio"
	"lectern/internal/language"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
	"lectern/internal/staging"
	"lectern/internal/storage"
)

// Phase names a step of a transcription run.
type Phase string

const (
	PhaseDownloading  Phase = "downloading"
	PhaseValidating   Phase = "validating"
	PhaseTranscribing Phase = "transcribing"
	PhaseComplete     Phase = "complete"
	PhaseError        Phase = "error"
)

// Observer receives progress synchronously, in order, before the step returns.
type Observer interface {
	OnProgress(phase Phase, message string, percent int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(phase Phase, message string, percent int)

func (f ObserverFunc) OnProgress(phase Phase, message string, percent int) { f(phase, message, percent) }

// Transcriber is the speech-to-text client.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (llm.Transcript, error)
}

// Result is the transcript of one run.
type Result struct {
	Text             string
	DurationSeconds  float64
	WordCount        int
	Confidence       float64
	Language         string
	Format           string
	OriginalFileSize int64
	ProcessingTime   time.Duration
}

// Orchestrator runs download, validate and transcribe for one object.
type Orchestrator struct {
	store       storage.ObjectStore
	validator   *audio.Validator
	client      Transcriber
	scratchRoot string
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrchestrator wires the collaborators. scratchRoot holds per-run directories.
func NewOrchestrator(store storage.ObjectStore, validator *audio.Validator, client Transcriber, scratchRoot string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		validator:   validator,
		client:      client,
		scratchRoot: scratchRoot,
		logger:      logging.NewComponentLogger(logger, "transcription"),
		now:         time.Now,
	}
}

type reporter struct {
	observer Observer
	last     int
}

func (r *reporter) report(phase Phase, message string, percent int) {
	if phase != PhaseError {
		r.last = percent
	}
	if r.observer != nil {
		r.observer.OnProgress(phase, message, percent)
	}
}

// TranscribeFromStorage downloads bucket/key and transcribes it for jobID.
func (o *Orchestrator) TranscribeFromStorage(ctx context.Context, bucket, key string, jobID int64, observer Observer) (Result, error) {
	started := o.now()
	progress := &reporter{observer: observer}
	logger := logging.WithContext(ctx, o.logger)

	scratch, err := staging.CreateRunDir(o.scratchRoot, jobID, o.now())
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "transcription", "create scratch directory", o.scratchRoot, err)
	}
	defer o.cleanup(logger, scratch)

	result, err := o.run(ctx, scratch, bucket, key, progress)
	if err != nil {
		progress.report(PhaseError, err.Error(), progress.last)
		return Result{}, err
	}
	result.ProcessingTime = o.now().Sub(started)
	progress.report(PhaseComplete, "Transcription complete", 100)
	logger.Info("transcription finished",
		logging.Int("word_count", result.WordCount),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Duration("elapsed", result.ProcessingTime),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, scratch, bucket, key string, progress *reporter) (Result, error) {
	progress.report(PhaseDownloading, "Downloading audio", 10)
	local := filepath.Join(scratch, "source"+strings.ToLower(path.Ext(key)))
	info, err := storage.Download(ctx, o.store, bucket, key, local, o.validator.MaxBytes())
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(err, services.ErrNotFound) {
			marker = services.ErrNotFound
		}
		return Result{}, services.Wrap(marker, string(PhaseDownloading), "download audio", bucket+"/"+key, err)
	}
	progress.report(PhaseDownloading, fmt.Sprintf("Downloaded %d bytes", info.Size), 20)

	progress.report(PhaseValidating, "Validating audio", 25)
	meta, err := o.validator.Validate(local)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, string(PhaseValidating), "validate audio", "", err)
	}
	progress.report(PhaseValidating, fmt.Sprintf("Audio format %s", meta.Format), 30)

	progress.report(PhaseTranscribing, "Transcribing audio", 50)
	transcript, err := o.client.Transcribe(ctx, local)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, string(PhaseTranscribing), "transcribe audio", "", err)
	}
	progress.report(PhaseTranscribing, "Transcript received", 90)

	return Result{
		Text:             transcript.Text,
		DurationSeconds:  transcript.DurationSeconds,
		WordCount:        len(strings.Fields(transcript.Text)),
		Confidence:       1.0,
		Language:         language.Normalize(transcript.Language),
		Format:           meta.Format,
		OriginalFileSize: meta.SizeBytes,
	}, nil
}

func (o *Orchestrator) cleanup(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(logger, "scratch cleanup failed", "scratch_cleanup_failed",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}
}
