// Package queue schedules graph runs on Redis: a list of pending jobs, a
// per-collection lock held for the duration of a run, and the worker loop
// that ties them to a job.Runner.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/matsen/citegraph/internal/job"
)

const (
	// DefaultKey is the Redis list holding pending jobs.
	DefaultKey = "citegraph:jobs"

	lockPrefix = "citegraph:lock:"
)

// Job is a queued graph run.
type Job struct {
	job.Request
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

// Queue is a FIFO of jobs backed by a Redis list (LPUSH/BRPOP).
type Queue struct {
	rdb *redis.Client
	key string
}

// Option configures a Queue.
type Option func(*Queue)

// WithKey sets the Redis list key.
func WithKey(key string) Option {
	return func(q *Queue) {
		q.key = key
	}
}

// New creates a Queue on rdb.
func New(rdb *redis.Client, opts ...Option) *Queue {
	q := &Queue{rdb: rdb, key: DefaultKey}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return rdb, nil
}

// Enqueue validates req, assigns a run ID if it has none, records the run
// as queued and pushes it. It returns the run ID.
func (q *Queue) Enqueue(ctx context.Context, req job.Request) (string, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	j := Job{Request: req, EnqueuedAt: time.Now().UTC()}
	if err := q.push(ctx, j); err != nil {
		return "", err
	}

	err := job.NewRedisSink(q.rdb).Report(ctx, job.Event{
		RunID:   req.RunID,
		Status:  job.StatusQueued,
		Message: "queued",
		Time:    j.EnqueuedAt,
	})
	if err != nil {
		return "", err
	}
	return req.RunID, nil
}

// Requeue puts j back at the end of the queue with its attempt count
// incremented.
func (q *Queue) Requeue(ctx context.Context, j Job) error {
	j.Attempts++
	return q.push(ctx, j)
}

func (q *Queue) push(ctx context.Context, j Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("pushing to %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest job. It returns nil, nil
// when the timeout expires with the queue empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("popping from %s: %w", q.key, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var j Job
	if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &j, nil
}

// Len returns the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Status returns the stored status of a run.
func (q *Queue) Status(ctx context.Context, runID string) (*job.RunStatus, error) {
	return job.ReadStatus(ctx, q.rdb, runID)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock takes the run lock of a collection for ttl. It returns the
// token needed to release it, or ok=false if another run holds the lock.
func (q *Queue) AcquireLock(ctx context.Context, collectionID string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = q.rdb.SetNX(ctx, lockPrefix+collectionID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquiring lock for %s: %w", collectionID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a lock taken with AcquireLock. A lock that expired
// and was taken by someone else is left alone.
func (q *Queue) ReleaseLock(ctx context.Context, collectionID, token string) error {
	if err := releaseScript.Run(ctx, q.rdb, []string{lockPrefix + collectionID}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing lock for %s: %w", collectionID, err)
	}
	return nil
}
