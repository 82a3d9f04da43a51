package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/content"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/transcription"
)

// Transcriber runs the download, validate and transcribe phases for one object.
type Transcriber interface {
	TranscribeFromStorage(ctx context.Context, bucket, key string, jobID int64, observer transcription.Observer) (transcription.Result, error)
}

// ContentGenerator turns a transcript into catalog copy.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (content.Result, error)
}

// Coordinator owns the job state machine and its worker pool.
type Coordinator struct {
	cfg         *config.Config
	store       *catalog.Store
	bus         *events.Bus
	transcriber Transcriber
	generator   ContentGenerator
	logger      *slog.Logger
	baseLogger  *slog.Logger
	now         func() time.Time

	pollInterval  time.Duration
	errorInterval time.Duration
	workers       int
	heartbeat     *HeartbeatMonitor

	wake chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	unsub   []func()
	wg      sync.WaitGroup
	lastErr error
	lastJob *catalog.Job
	active  map[int64]string
}

// NewCoordinator wires the pipeline collaborators.
func NewCoordinator(cfg *config.Config, store *catalog.Store, bus *events.Bus, transcriber Transcriber, generator ContentGenerator, logger *slog.Logger) *Coordinator {
	base := logger
	logger = logging.NewComponentLogger(logger, "workflow")
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Coordinator{
		cfg:           cfg,
		store:         store,
		bus:           bus,
		transcriber:   transcriber,
		generator:     generator,
		logger:        logger,
		baseLogger:    base,
		now:           time.Now,
		pollInterval:  seconds(cfg.Workflow.PollInterval, 5*time.Second),
		errorInterval: seconds(cfg.Workflow.ErrorRetryInterval, 10*time.Second),
		workers:       workers,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			seconds(cfg.Workflow.HeartbeatInterval, 15*time.Second),
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
			cfg.Workflow.MaxRunAttempts,
		),
		wake:   make(chan struct{}, 1),
		active: make(map[int64]string),
	}
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

// Wake nudges an idle worker to poll immediately.
func (c *Coordinator) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) waitForWork(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-c.wake:
	case <-timer.C:
	}
}
