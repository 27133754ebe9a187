package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matsen/citegraph/internal/graph"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Event is one progress milestone of a run.
type Event struct {
	RunID   string       `json:"run_id"`
	Status  Status       `json:"status"`
	Message string       `json:"message,omitempty"`
	Papers  int          `json:"papers,omitempty"`
	Stats   *graph.Stats `json:"stats,omitempty"`
	Time    time.Time    `json:"time"`
}

// ProgressSink receives run milestones. Delivery is best-effort.
type ProgressSink interface {
	Report(ctx context.Context, ev Event) error
}

// LogSink writes events to a slog logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l}
}

// Report implements ProgressSink.
func (s *LogSink) Report(ctx context.Context, ev Event) error {
	attrs := []any{"run_id", ev.RunID, "status", ev.Status}
	if ev.Papers > 0 {
		attrs = append(attrs, "papers", ev.Papers)
	}
	if ev.Stats != nil {
		attrs = append(attrs, "nodes_processed", ev.Stats.NodesProcessed, "papers_added", ev.Stats.PapersAdded)
	}
	s.logger.InfoContext(ctx, ev.Message, attrs...)
	return nil
}

// RunKey is the Redis hash holding the latest status of a run.
func RunKey(runID string) string {
	return "citegraph:run:" + runID
}

// ProgressChannel is the Redis pub/sub channel of a run's events.
func ProgressChannel(runID string) string {
	return "citegraph:progress:" + runID
}

// DefaultStatusTTL is how long a run's status hash is kept.
const DefaultStatusTTL = 7 * 24 * time.Hour

// RedisSink stores the latest event of each run in a Redis hash and
// publishes every event on the run's channel.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb, ttl: DefaultStatusTTL}
}

// Report implements ProgressSink.
func (s *RedisSink) Report(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	fields := map[string]any{
		"status":     string(ev.Status),
		"message":    ev.Message,
		"papers":     strconv.Itoa(ev.Papers),
		"updated_at": ev.Time.Format(time.RFC3339Nano),
	}
	if ev.Stats != nil {
		stats, err := json.Marshal(ev.Stats)
		if err != nil {
			return fmt.Errorf("marshaling stats: %w", err)
		}
		fields["stats"] = string(stats)
	}

	key := RunKey(ev.RunID)
	pipe := s.rdb.Pipeline()
	if ev.Status == StatusFailed && ev.Stats == nil {
		// Progress stats from a rolled-back run were never committed.
		pipe.HDel(ctx, key, "stats")
	}
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Publish(ctx, ProgressChannel(ev.RunID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing run status: %w", err)
	}
	return nil
}

// RunStatus is the stored status of a run.
type RunStatus struct {
	RunID     string       `json:"run_id"`
	Status    Status       `json:"status"`
	Message   string       `json:"message,omitempty"`
	Papers    int          `json:"papers,omitempty"`
	Stats     *graph.Stats `json:"stats,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ErrUnknownRun is returned by ReadStatus for run IDs with no stored status.
var ErrUnknownRun = errors.New("unknown run")

// ReadStatus loads the status hash written by RedisSink.
func ReadStatus(ctx context.Context, rdb *redis.Client, runID string) (*RunStatus, error) {
	fields, err := rdb.HGetAll(ctx, RunKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading run status: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	st := &RunStatus{
		RunID:   runID,
		Status:  Status(fields["status"]),
		Message: fields["message"],
	}
	st.Papers, _ = strconv.Atoi(fields["papers"])
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if raw := fields["stats"]; raw != "" {
		var stats graph.Stats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			return nil, fmt.Errorf("decoding stats: %w", err)
		}
		st.Stats = &stats
	}
	return st, nil
}

// MultiSink fans events out to several sinks. All sinks are tried; their
// errors are joined.
type MultiSink []ProgressSink

// Report implements ProgressSink.
func (m MultiSink) Report(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Report(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
