package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/pipeline"
	"quill/internal/ranking"
	"quill/internal/registry"
	"quill/internal/store"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	registry     *registry.Registry
	ranker       *ranking.Engine
	procName     string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	st *store.Store,
	orch *pipeline.Orchestrator,
	reg *registry.Registry,
	ranker *ranking.Engine,
	processorName string,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || st == nil || orch == nil || reg == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:          cfg,
		logger:       logging.WithComponent(logger, "daemon"),
		store:        st,
		orchestrator: orch,
		registry:     reg,
		ranker:       ranker,
		procName:     processorName,
		lockPath:     cfg.Paths.LockFile,
		lock:         flock.New(cfg.Paths.LockFile),
	}, nil
}

// Start acquires the instance lock and brings up the registry sweeper and
// HTTP API. It returns once everything is listening.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another quill daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.registry.Start()

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.teardown()
		return err
	}
	d.api = api
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.teardown()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down background processing, waits for in-flight runs, and
// releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	d.orchestrator.Wait()
	d.registry.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.registry.Close()
	_ = d.lock.Unlock()
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status describes daemon runtime state.
type Status struct {
	Running         bool
	PID             int
	DatabasePath    string
	LockFilePath    string
	ContentItems    int
	ActiveProcesses []*store.ProcessRecord
	Processor       string
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	count, err := d.store.CountSources(ctx)
	if err != nil {
		d.logger.Warn("count sources for status", logging.Error(err))
	}
	return Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		DatabasePath:    d.store.Path(),
		LockFilePath:    d.lockPath,
		ContentItems:    count,
		ActiveProcesses: d.registry.Active(),
		Processor:       d.procName,
	}
}
