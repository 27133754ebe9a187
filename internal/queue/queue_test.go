package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/citegraph/internal/graph"
	"github.com/matsen/citegraph/internal/job"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, WithKey("test:jobs")), mr
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, job.Request{CollectionID: "c1", Mode: "bfs", Depth: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	id2, err := q.Enqueue(ctx, job.Request{RunID: "given", CollectionID: "c2", Mode: "dfs"})
	require.NoError(t, err)
	assert.Equal(t, "given", id2)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	st, err := q.Status(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, st.Status)

	j, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, id1, j.RunID, "FIFO order")
	assert.Equal(t, "c1", j.CollectionID)
	assert.Equal(t, 2, j.Depth)
	assert.False(t, j.EnqueuedAt.IsZero())

	j, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "given", j.RunID)
	assert.Equal(t, "dfs", j.Mode)
}

func TestQueue_EnqueueRejectsInvalid(t *testing.T) {
	q, _ := setupQueue(t)

	_, err := q.Enqueue(context.Background(), job.Request{Mode: "bfs"})
	assert.Error(t, err)

	n, _ := q.Len(context.Background())
	assert.EqualValues(t, 0, n)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := setupQueue(t)

	j, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestQueue_Requeue(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, job.Request{RunID: "a", CollectionID: "c"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, job.Request{RunID: "b", CollectionID: "c"})
	require.NoError(t, err)

	j, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(ctx, *j))

	next, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", next.RunID, "requeued job goes to the back")

	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", again.RunID)
	assert.Equal(t, 1, again.Attempts)
}

func TestQueue_Lock(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	token, ok, err := q.AcquireLock(ctx, "c", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = q.AcquireLock(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	_, ok, err = q.AcquireLock(ctx, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per collection")

	require.NoError(t, q.ReleaseLock(ctx, "c", "wrong-token"))
	assert.True(t, mr.Exists(lockPrefix+"c"), "foreign token must not release")

	require.NoError(t, q.ReleaseLock(ctx, "c", token))
	assert.False(t, mr.Exists(lockPrefix+"c"))

	_, ok, err = q.AcquireLock(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueue_LockExpires(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	_, ok, err := q.AcquireLock(ctx, "c", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = q.AcquireLock(ctx, "c", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

type fakeRunner struct {
	mu       sync.Mutex
	requests []job.Request
	deadline time.Time
	err      error
	panics   bool
}

func (f *fakeRunner) Run(ctx context.Context, req job.Request) (graph.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.deadline, _ = ctx.Deadline()
	if f.panics {
		panic("runner blew up")
	}
	return graph.Stats{NodesProcessed: 1}, f.err
}

func TestWorker_ProcessOne(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()
	runner := &fakeRunner{}
	w := NewWorker(q, runner, WithPollTimeout(100*time.Millisecond), WithJobTimeout(time.Hour))

	_, err := q.Enqueue(ctx, job.Request{RunID: "r1", CollectionID: "c", Depth: 1})
	require.NoError(t, err)

	got, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, "r1", runner.requests[0].RunID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), runner.deadline, time.Minute, "run gets the job timeout")
	assert.False(t, mr.Exists(lockPrefix+"c"), "lock released after the run")

	got, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, got, "empty queue")
}

func TestWorker_RunFailureIsNotWorkerError(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()
	runner := &fakeRunner{err: errors.New("collection not found")}
	w := NewWorker(q, runner, WithPollTimeout(100*time.Millisecond))

	_, err := q.Enqueue(ctx, job.Request{RunID: "r1", CollectionID: "c"})
	require.NoError(t, err)

	got, err := w.ProcessOne(ctx)
	assert.NoError(t, err)
	assert.True(t, got)
}

func TestWorker_RunnerPanicIsContained(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()
	w := NewWorker(q, &fakeRunner{panics: true}, WithPollTimeout(100*time.Millisecond))

	_, err := q.Enqueue(ctx, job.Request{RunID: "r1", CollectionID: "c"})
	require.NoError(t, err)

	var got bool
	require.NotPanics(t, func() { got, err = w.ProcessOne(ctx) })
	require.NoError(t, err)
	assert.True(t, got)
	assert.False(t, mr.Exists(lockPrefix+"c"), "lock released after the panic")

	st, err := q.Status(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, st.Status)
	assert.Contains(t, st.Message, "runner blew up")
}

func TestWorker_BusyCollectionRequeues(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()
	runner := &fakeRunner{}
	w := NewWorker(q, runner, WithPollTimeout(100*time.Millisecond), WithBusyBackoff(0), WithMaxAttempts(2))

	_, ok, err := q.AcquireLock(ctx, "c", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = q.Enqueue(ctx, job.Request{RunID: "r1", CollectionID: "c"})
	require.NoError(t, err)

	got, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Empty(t, runner.requests, "busy collection must not run")

	n, _ := q.Len(ctx)
	assert.EqualValues(t, 1, n, "job requeued")

	got, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	n, _ = q.Len(ctx)
	assert.EqualValues(t, 0, n, "job dropped after max attempts")

	st, err := q.Status(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, st.Status)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q, _ := setupQueue(t)
	w := NewWorker(q, &fakeRunner{}, WithPollTimeout(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
