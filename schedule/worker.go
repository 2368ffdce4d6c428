package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule  = "@every 1m"
	DefaultBatchSize = 10
)

// BatchProcessor drives queued documents through the pipeline.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*core.ProcessingReport, error)
}

// FailedRetrier resets failed documents so the next batch picks them up.
type FailedRetrier interface {
	RetryFailed(ctx context.Context, limit int) (int, error)
}

type Worker struct {
	name        string
	processor   BatchProcessor
	checkpoints storage.CheckpointRepository
	spec        string
	batchSize   int
	retryLimit  int
	logger      *slog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

type Option func(*Worker) error

// WithSchedule sets the cron spec. Standard five-field specs and descriptors
// such as "@every 30s" or "@hourly" are accepted.
func WithSchedule(spec string) Option {
	return func(w *Worker) error {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%w: invalid schedule %q: %w", core.ErrConfiguration, spec, err)
		}
		w.spec = spec
		return nil
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) error {
		if size <= 0 {
			return fmt.Errorf("%w: batch size must be greater than 0, got %d", core.ErrConfiguration, size)
		}
		w.batchSize = size
		return nil
	}
}

// WithRetryFailed makes each run first reset up to limit failed documents.
// The processor must implement FailedRetrier.
func WithRetryFailed(limit int) Option {
	return func(w *Worker) error {
		if limit < 0 {
			return fmt.Errorf("%w: retry limit cannot be negative", core.ErrConfiguration)
		}
		if _, ok := w.processor.(FailedRetrier); !ok && limit > 0 {
			return fmt.Errorf("%w: processor cannot retry failed documents", core.ErrConfiguration)
		}
		w.retryLimit = limit
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

func NewWorker(name string, processor BatchProcessor, checkpoints storage.CheckpointRepository, opts ...Option) (*Worker, error) {
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointsRequired
	}
	if name == "" {
		return nil, fmt.Errorf("%w: worker name is required", core.ErrConfiguration)
	}

	w := &Worker{
		name:        name,
		processor:   processor,
		checkpoints: checkpoints,
		spec:        DefaultSchedule,
		batchSize:   DefaultBatchSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "worker", "worker", name)
	return w, nil
}

// RunOnce processes one batch and records a checkpoint.
// Returns ErrAlreadyRunning if a run is in progress.
func (w *Worker) RunOnce(ctx context.Context) (*core.ProcessingReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer w.running.Store(false)

	if w.retryLimit > 0 {
		reset, err := w.processor.(FailedRetrier).RetryFailed(ctx, w.retryLimit)
		if err != nil {
			w.logger.Warn("failed to reset failed documents", "err", err)
		} else if reset > 0 {
			w.logger.Info("reset failed documents", "count", reset)
		}
	}

	start := time.Now()
	report, err := w.processor.ProcessBatch(ctx, w.batchSize)
	if report != nil {
		checkpoint := &core.Checkpoint{
			Worker:      w.name,
			RunId:       report.RunId,
			Processed:   report.Processed,
			Successful:  report.Successful,
			Failed:      report.Failed,
			Interrupted: report.Interrupted,
		}
		// Saved after cancellation too, so the record reflects the partial run
		if saveErr := w.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), checkpoint); saveErr != nil {
			w.logger.Error("failed to save checkpoint", "err", saveErr)
		}
		w.logger.Info("batch finished", "runId", report.RunId, "processed", report.Processed,
			"successful", report.Successful, "failed", report.Failed,
			"interrupted", report.Interrupted, "duration", time.Since(start))
	}
	return report, err
}

// Checkpoint returns the last recorded run, or nil if the worker never ran.
func (w *Worker) Checkpoint(ctx context.Context) (*core.Checkpoint, error) {
	return w.checkpoints.LoadCheckpoint(ctx, w.name)
}

// Start schedules RunOnce until Stop is called or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := &cronLoggerAdapter{logger: w.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc(w.spec, func() {
		if _, err := w.RunOnce(runCtx); err != nil {
			w.logger.Warn("scheduled batch failed", "err", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	w.cron = c
	w.cancel = cancel
	c.Start()
	w.logger.Info("worker started", "schedule", w.spec, "batchSize", w.batchSize)
	return nil
}

// Stop cancels the running batch, if any, and waits for it to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	c, cancel := w.cron, w.cancel
	w.cron, w.cancel = nil, nil
	w.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	w.logger.Info("worker stopped")
}
