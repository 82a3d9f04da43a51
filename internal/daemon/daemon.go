package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lectern/internal/api"
	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/staging"
	"lectern/internal/storage"
	"lectern/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *catalog.Store
	objects     storage.ObjectStore
	bus         *events.Bus
	coordinator *workflow.Coordinator
	jobs        *api.JobService
	notifier    notifications.Service
	signer      *storage.Signer
	apiServer   *apiServer

	lockPath string
	lock     *flock.Flock

	running    atomic.Bool
	cancel     context.CancelFunc
	notifyStop func()
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Health       catalog.HealthSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, objects storage.ObjectStore, bus *events.Bus, coordinator *workflow.Coordinator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || objects == nil || bus == nil || coordinator == nil {
		return nil, errors.New("daemon requires config, store, object store, event bus, and coordinator")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		objects:     objects,
		bus:         bus,
		coordinator: coordinator,
		jobs:        api.NewJobService(store, objects, bus, cfg.Storage.Bucket, cfg.SignedURLTTL(), logger),
		notifier:    notifications.NewService(cfg),
		signer:      storage.NewSigner(cfg.Storage.SigningSecret),
		lockPath:    cfg.LockPath(),
		lock:        flock.New(cfg.LockPath()),
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = srv
	return d, nil
}

// Start acquires the daemon lock, then launches the coordinator and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lecternd instance is already running")
	}

	// Holding the lock means no run of another process can own a scratch dir.
	staging.Sweep(ctx, d.cfg.Paths.ScratchDir, time.Now(), d.logger)

	runCtx, cancel := context.WithCancel(ctx)
	_, d.notifyStop = notifications.NewBridge(d.bus, d.notifier, d.logger)
	if err := d.coordinator.Start(runCtx); err != nil {
		d.abortStart(cancel)
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.apiServer.start(runCtx); err != nil {
		d.coordinator.Stop()
		d.abortStart(cancel)
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("lecternd started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.apiServer.address()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) abortStart(cancel context.CancelFunc) {
	cancel()
	if d.notifyStop != nil {
		d.notifyStop()
		d.notifyStop = nil
	}
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.apiServer.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.coordinator.Stop()
	if d.notifyStop != nil {
		d.notifyStop()
		d.notifyStop = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("lecternd stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the address the API server listens on, once started.
func (d *Daemon) APIAddress() string {
	return d.apiServer.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("failed to read job health", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.coordinator.Status(ctx),
		Health:       health,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
