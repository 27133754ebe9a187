package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matsen/citegraph/internal/graph"
	"github.com/matsen/citegraph/internal/job"
)

// Worker defaults.
const (
	DefaultJobTimeout  = 30 * time.Minute
	DefaultPollTimeout = 5 * time.Second
	DefaultMaxAttempts = 20
	DefaultBusyBackoff = time.Second
)

// Runner executes one graph run.
type Runner interface {
	Run(ctx context.Context, req job.Request) (graph.Stats, error)
}

// Worker pulls jobs off a Queue and runs them one at a time.
type Worker struct {
	queue       *Queue
	runner      Runner
	jobTimeout  time.Duration
	pollTimeout time.Duration
	maxAttempts int
	busyBackoff time.Duration
	logger      *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithJobTimeout sets the hard wall-clock limit of a run.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// WithPollTimeout sets how long one Dequeue blocks.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithMaxAttempts sets how often a job is requeued while its collection
// is busy before it is failed.
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		w.maxAttempts = n
	}
}

// WithBusyBackoff sets the pause before a job whose collection is locked
// is requeued.
func WithBusyBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.busyBackoff = d
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a Worker.
func NewWorker(q *Queue, r Runner, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       q,
		runner:      r,
		jobTimeout:  DefaultJobTimeout,
		pollTimeout: DefaultPollTimeout,
		maxAttempts: DefaultMaxAttempts,
		busyBackoff: DefaultBusyBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "worker started", "queue", w.queue.key, "job_timeout", w.jobTimeout)
	for {
		if ctx.Err() != nil {
			w.logger.InfoContext(ctx, "worker stopping")
			return nil
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.ErrorContext(ctx, "processing job", "error", err)
			sleep(ctx, DefaultBusyBackoff)
		}
	}
}

// ProcessOne waits for one job and handles it. It reports whether a job
// was dequeued. A failed run is not an error of ProcessOne; it is reported
// through the run's status.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	j, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil || j == nil {
		return false, err
	}
	logger := w.logger.With("run_id", j.RunID, "collection_id", j.CollectionID)

	token, ok, err := w.queue.AcquireLock(ctx, j.CollectionID, w.jobTimeout+time.Minute)
	if err != nil {
		return true, errors.Join(err, w.queue.Requeue(ctx, *j))
	}
	if !ok {
		if j.Attempts+1 >= w.maxAttempts {
			logger.WarnContext(ctx, "collection busy, giving up", "attempts", j.Attempts+1)
			return true, job.NewRedisSink(w.queue.rdb).Report(ctx, job.Event{
				RunID: j.RunID, Status: job.StatusFailed, Time: time.Now().UTC(),
				Message: "another graph run on this collection did not finish in time",
			})
		}
		logger.InfoContext(ctx, "collection busy, requeueing", "attempts", j.Attempts+1)
		sleep(ctx, w.busyBackoff)
		return true, w.queue.Requeue(context.WithoutCancel(ctx), *j)
	}
	defer func() {
		if err := w.queue.ReleaseLock(context.WithoutCancel(ctx), j.CollectionID, token); err != nil {
			logger.WarnContext(ctx, "releasing collection lock", "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	logger.InfoContext(ctx, "running job", "mode", j.Mode, "depth", j.Depth)
	if err := w.run(runCtx, j.Request); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.WarnContext(ctx, "job timed out", "timeout", w.jobTimeout)
		}
		var pe *panicError
		if errors.As(err, &pe) {
			logger.ErrorContext(ctx, "job panicked", "error", err)
			return true, job.NewRedisSink(w.queue.rdb).Report(context.WithoutCancel(ctx), job.Event{
				RunID: j.RunID, Status: job.StatusFailed, Time: time.Now().UTC(), Message: err.Error(),
			})
		}
	}
	return true, nil
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.value)
}

// run calls the runner, turning a panic into a *panicError so one bad job
// cannot stop the worker.
func (w *Worker) run(ctx context.Context, req job.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	_, err = w.runner.Run(ctx, req)
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
