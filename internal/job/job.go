// Package job runs one graph build over a collection as a single
// unit-of-work and reports its progress.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/matsen/citegraph/internal/embedding"
	"github.com/matsen/citegraph/internal/graph"
	"github.com/matsen/citegraph/internal/storage"
)

// Run failures that are not worth retrying.
var (
	ErrCollectionNotFound = storage.ErrCollectionNotFound
	ErrEmptyCollection    = errors.New("collection has no papers to seed the graph")
)

// DefaultMaxDepth is the system-wide depth ceiling.
const DefaultMaxDepth = 3

// progressEvery is how many expanded nodes pass between progress events.
const progressEvery = 10

var validate = validator.New()

// Request describes one graph build.
type Request struct {
	RunID        string `json:"run_id" validate:"required"`
	CollectionID string `json:"collection_id" validate:"required"`
	Mode         string `json:"mode" validate:"omitempty,oneof=bfs dfs"`
	Depth        int    `json:"depth" validate:"gte=0"`
}

// Validate checks the request fields.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid graph request: %w", err)
	}
	return nil
}

// Runner executes graph builds against a database.
type Runner struct {
	db       *storage.DB
	registry graph.Registry
	embedder embedding.Provider
	sink     ProgressSink
	maxDepth int
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSink sets the progress sink. The default logs progress.
func WithSink(s ProgressSink) RunnerOption {
	return func(r *Runner) {
		r.sink = s
	}
}

// WithMaxDepth sets the depth ceiling applied to every request.
func WithMaxDepth(d int) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.maxDepth = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner.
func NewRunner(db *storage.DB, registry graph.Registry, embedder embedding.Provider, opts ...RunnerOption) *Runner {
	r := &Runner{
		db:       db,
		registry: registry,
		embedder: embedder,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = NewLogSink(r.logger)
	}
	return r
}

// MaxDepth returns the depth ceiling.
func (r *Runner) MaxDepth() int {
	return r.maxDepth
}

// Run builds the citation graph of req.CollectionID from all of its current
// papers. Every mutation is committed together at the end; on any error
// nothing is committed and a failed event carrying the error is reported.
// A panic inside the build is recovered and reported the same way.
func (r *Runner) Run(ctx context.Context, req Request) (stats graph.Stats, err error) {
	start := time.Now()
	mode := graph.BreadthFirst
	logger := r.logger.With("run_id", req.RunID, "collection_id", req.CollectionID)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("graph run panicked: %v", p)
		}
		status := StatusSucceeded
		if err != nil {
			status = StatusFailed
			logger.ErrorContext(ctx, "graph run failed", "error", err, "duration", time.Since(start))
			// Nothing was committed, so the failed event carries no stats.
			r.report(ctx, Event{RunID: req.RunID, Status: StatusFailed, Message: err.Error()})
		}
		graph.RunDuration.WithLabelValues(string(mode), string(status)).Observe(time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		return stats, err
	}
	mode, err = graph.ParseMode(req.Mode)
	if err != nil {
		return stats, err
	}
	depth := min(req.Depth, r.maxDepth)
	if depth < req.Depth {
		logger.InfoContext(ctx, "depth capped", "requested", req.Depth, "max", r.maxDepth)
	}

	r.report(ctx, Event{RunID: req.RunID, Status: StatusRunning, Message: fmt.Sprintf("starting %s build to depth %d", mode, depth)})

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	coll, err := tx.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return stats, err
	}
	if coll == nil {
		return stats, fmt.Errorf("%w: %s", ErrCollectionNotFound, req.CollectionID)
	}

	seeds, err := tx.ListPapers(ctx, req.CollectionID)
	if err != nil {
		return stats, err
	}
	if len(seeds) == 0 {
		return stats, fmt.Errorf("%w: %s", ErrEmptyCollection, req.CollectionID)
	}
	r.report(ctx, Event{RunID: req.RunID, Status: StatusRunning, Papers: len(seeds),
		Message: fmt.Sprintf("found %d seed papers", len(seeds))})

	engine := graph.New(tx, r.registry, r.embedder, graph.WithLogger(logger))
	engine.Traverser.OnExpand = func(s graph.Stats) {
		if s.NodesProcessed%progressEvery == 0 {
			r.report(ctx, Event{RunID: req.RunID, Status: StatusRunning, Papers: len(seeds) + s.PapersAdded, Stats: &s,
				Message: fmt.Sprintf("expanded %d papers", s.NodesProcessed)})
		}
	}

	stats, err = engine.Traverser.Traverse(ctx, seeds, depth, mode)
	if err != nil {
		return stats, fmt.Errorf("traversing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return stats, err
	}

	logger.InfoContext(ctx, "graph run succeeded",
		"nodes_processed", stats.NodesProcessed, "edges_created", stats.EdgesCreated,
		"papers_added", stats.PapersAdded, "depth_reached", stats.DepthReached,
		"duration", time.Since(start))
	r.report(ctx, Event{RunID: req.RunID, Status: StatusSucceeded, Papers: len(seeds) + stats.PapersAdded, Stats: &stats,
		Message: "graph build completed"})
	return stats, nil
}

// report delivers an event. Sink failures are logged and otherwise ignored.
func (r *Runner) report(ctx context.Context, ev Event) {
	if ev.RunID == "" {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if err := r.sink.Report(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.WarnContext(ctx, "progress report failed", "run_id", ev.RunID, "status", ev.Status, "error", err)
	}
}
