package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"reelcast/internal/config"
	"reelcast/internal/logging"
	"reelcast/internal/services"
	"reelcast/internal/store"
)

var (
	// ErrStopped is returned by Submit once the dispatcher no longer accepts work.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrQueueFull is returned by Submit when no queue slot frees up within
	// the enqueue timeout.
	ErrQueueFull = errors.New("dispatcher queue full")
)

// Task is one unit of background work bound to a workflow record.
type Task struct {
	Name string
	Ref  store.Ref
	// Stage is the record status the task was planned for.
	Stage store.Status
	Run   func(ctx context.Context) error
}

// DeadLetterStore persists tasks that exhausted their retries.
type DeadLetterStore interface {
	InsertDeadLetter(ctx context.Context, dl *store.DeadLetter) error
}

// Observer receives task outcomes (metrics).
type Observer interface {
	ObserveTask(name, outcome string, elapsed time.Duration)
}

// DeadLetterHook is invoked after a task is dead-lettered.
type DeadLetterHook func(ctx context.Context, task Task, err error)

// Config sizes the worker pool and retry policy.
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// EnqueueTimeout bounds the wait for a queue slot; zero never waits.
	EnqueueTimeout time.Duration
}

// FromConfig extracts dispatcher settings.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		MaxRetries: cfg.Dispatch.MaxRetries,
		BaseDelay:  time.Duration(cfg.Dispatch.BaseDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Dispatch.MaxDelayMS) * time.Millisecond,

		EnqueueTimeout: time.Duration(cfg.Dispatch.EnqueueTimeoutMS) * time.Millisecond,
	}
}

// Dispatcher executes tasks on a fixed set of workers.
type Dispatcher struct {
	cfg         Config
	logger      *slog.Logger
	deadLetters DeadLetterStore
	onDead      DeadLetterHook
	observer    Observer
	executor    failsafe.Executor[any]

	mu      sync.RWMutex
	queue   chan Task
	running bool
	closed  bool
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logging.NewComponentLogger(logger, "dispatch")
	}
}

// WithDeadLetters persists exhausted tasks to st.
func WithDeadLetters(st DeadLetterStore) Option {
	return func(d *Dispatcher) {
		d.deadLetters = st
	}
}

// WithDeadLetterHook registers a callback for exhausted tasks.
func WithDeadLetterHook(hook DeadLetterHook) Option {
	return func(d *Dispatcher) {
		d.onDead = hook
	}
}

// WithObserver attaches a task observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// New constructs a dispatcher. Call Start before submitting work.
func New(cfg Config, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.EnqueueTimeout < 0 {
		cfg.EnqueueTimeout = 0
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: logging.NewComponentLogger(nil, "dispatch"),
		queue:  make(chan Task, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && !services.IsPermanent(err) && !errors.Is(err, context.Canceled)
		}).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()
	d.executor = failsafe.With[any](retry)
	return d
}

// Start launches the workers. Tasks run under ctx.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("dispatcher already running")
	}
	if d.closed {
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancel = cancel
	d.running = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(runCtx, i)
	}
	d.logger.Info("dispatcher started",
		logging.Int("workers", d.cfg.Workers),
		logging.Int("queue_size", d.cfg.QueueSize),
		logging.Int("max_retries", d.cfg.MaxRetries),
	)
	return nil
}

// Stop closes intake and waits for queued tasks to drain. When ctx ends
// first, in-flight tasks are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	running := d.running
	cancel := d.cancel
	d.mu.Unlock()
	if !running {
		return
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("dispatcher drain interrupted; cancelling in-flight tasks",
			logging.Int("pending", len(d.queue)),
			logging.String(logging.FieldEventType, "dispatcher_drain_timeout"),
			logging.String(logging.FieldErrorHint, "interrupted tasks are not resumed; the failsafe reconciler polls records that hold a correlation id and fails the rest after the stuck threshold"),
		)
	}
	cancel()
	<-done
	d.logger.Info("dispatcher stopped")
}

// Submit enqueues a task. When the queue is full it waits at most the
// configured enqueue timeout and then returns ErrQueueFull.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %q has no run function", task.Name)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || !d.running {
		return ErrStopped
	}
	select {
	case d.queue <- task:
		return nil
	default:
	}
	if d.cfg.EnqueueTimeout > 0 {
		timer := time.NewTimer(d.cfg.EnqueueTimeout)
		defer timer.Stop()
		select {
		case d.queue <- task:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-d.runCtx.Done():
			return ErrStopped
		case <-timer.C:
		}
	}
	logging.WarnWithContext(d.logger, "dispatcher queue full; task not queued", "dispatcher_overflow",
		logging.String("task", task.Name),
		logging.String(logging.FieldWorkflowID, task.Ref.ID),
		logging.Int("queue_size", d.cfg.QueueSize),
		logging.String(logging.FieldErrorHint, "raise dispatch.workers or dispatch.queue_size; the failsafe reconciler fails the record once it passes the stuck threshold"),
	)
	return ErrQueueFull
}

// Pending reports the number of queued tasks.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(ctx context.Context, index int) {
	defer d.wg.Done()
	for task := range d.queue {
		d.execute(ctx, task, index)
	}
}

func (d *Dispatcher) execute(ctx context.Context, task Task, worker int) {
	logger := d.logger.With(
		logging.String("task", task.Name),
		logging.String(logging.FieldWorkflowID, task.Ref.ID),
		logging.String(logging.FieldKind, string(task.Ref.Kind)),
		logging.Int("worker", worker),
	)
	taskCtx := services.WithWorkflowID(ctx, task.Ref.ID)
	taskCtx = services.WithKind(taskCtx, string(task.Ref.Kind))
	taskCtx = services.WithStage(taskCtx, string(task.Stage))

	start := time.Now()
	attempts := 0
	err := d.executor.WithContext(taskCtx).Run(func() error {
		attempts++
		runErr := task.Run(taskCtx)
		if runErr != nil && attempts <= d.cfg.MaxRetries && !services.IsPermanent(runErr) {
			logging.WarnWithContext(logger, "background task attempt failed", "task_retry",
				logging.Int("attempt", attempts),
				logging.Error(runErr),
				logging.String(logging.FieldErrorHint, "the task is retried with backoff"),
			)
		}
		return runErr
	})

	switch {
	case err == nil:
		d.observe(task.Name, "success", start)
		logger.Debug("background task finished", logging.Int("attempts", attempts), logging.Duration("elapsed", time.Since(start)))
	case ctx.Err() != nil:
		d.observe(task.Name, "cancelled", start)
		logging.WarnWithContext(logger, "background task cancelled by shutdown", "task_cancelled",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the task is not resumed; the failsafe reconciler polls the record if it holds a correlation id and otherwise fails it after the stuck threshold"),
		)
	default:
		d.observe(task.Name, "dead_letter", start)
		d.deadLetter(ctx, logger, task, err, attempts)
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, logger *slog.Logger, task Task, err error, attempts int) {
	logging.ErrorWithContext(logger, "background task exhausted retries", "task_dead_lettered",
		logging.Int("attempts", attempts),
		logging.Error(err),
		logging.Alert("background_task_failed"),
		logging.String(logging.FieldErrorHint, "inspect dead letters with `reelcast deadletters list`"),
	)
	if d.deadLetters != nil {
		dl := &store.DeadLetter{
			Task:         task.Name,
			WorkflowID:   task.Ref.ID,
			Kind:         task.Ref.Kind,
			ErrorMessage: err.Error(),
			Attempts:     attempts,
		}
		if insertErr := d.deadLetters.InsertDeadLetter(ctx, dl); insertErr != nil {
			logger.Error("failed to persist dead letter", logging.Error(insertErr))
		}
	}
	if d.onDead != nil {
		d.onDead(ctx, task, err)
	}
}

func (d *Dispatcher) observe(name, outcome string, start time.Time) {
	if d.observer == nil {
		return
	}
	d.observer.ObserveTask(name, outcome, time.Since(start))
}
