package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelcast/internal/config"
	"reelcast/internal/logging"
)

// Daemon runs the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	c      *Components
	server *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	QueueDepth   int
}

// New constructs a daemon around wired components. Components must have been
// wired with Background enabled.
func New(cfg *config.Config, c *Components) (*Daemon, error) {
	if cfg == nil || c == nil || c.Store == nil || c.Engine == nil {
		return nil, errors.New("daemon requires config and wired components")
	}
	if c.Dispatcher == nil {
		return nil, errors.New("daemon requires a background dispatcher")
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "reelcast.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(c.Logger, "daemon"),
		c:        c,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, c)
	return d, nil
}

// Start acquires the lock and launches the dispatcher, the failsafe loop and
// the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelcast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	// workers outlive runCtx so Stop can drain the queue
	if err := d.c.Dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		cancel()
		d.c.Dispatcher.Stop(context.Background())
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	if d.cfg.Reconcile.Enabled {
		d.loops.Add(1)
		go func() {
			defer d.loops.Done()
			d.c.Reconciler.Run(runCtx, d.cfg.ReconcileInterval())
		}()
	}
	if len(d.cfg.Feeds) > 0 {
		d.loops.Add(1)
		go func() {
			defer d.loops.Done()
			if _, err := d.c.Feeds.Check(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("initial feed health check failed", logging.Error(err))
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("reelcast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.server.address()),
		logging.Bool("reconcile_enabled", d.cfg.Reconcile.Enabled),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts down the HTTP server, the failsafe loop and the dispatcher, then
// releases the lock. Queued tasks are drained until ctx ends.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}
	d.server.stop(ctx)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.loops.Wait()
	d.c.Dispatcher.Stop(ctx)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelcast daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close(ctx context.Context) error {
	d.Stop(ctx)
	return d.c.Store.Close()
}

// Handler exposes the HTTP router.
func (d *Daemon) Handler() http.Handler {
	return d.server.router
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		QueueDepth:   d.c.Dispatcher.Pending(),
	}
}
