package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/citegraph/internal/graph"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestRedisSink_ReportAndReadStatus(t *testing.T) {
	rdb, mr := setupRedis(t)
	ctx := context.Background()
	sink := NewRedisSink(rdb)

	sub := rdb.Subscribe(ctx, ProgressChannel("run-1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	stats := graph.Stats{NodesProcessed: 1, EdgesCreated: 2, PapersAdded: 2, DepthReached: 1}
	ev := Event{RunID: "run-1", Status: StatusSucceeded, Message: "done", Papers: 3, Stats: &stats, Time: time.Now().UTC()}
	require.NoError(t, sink.Report(ctx, ev))

	st, err := ReadStatus(ctx, rdb, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, st.Status)
	assert.Equal(t, "done", st.Message)
	assert.Equal(t, 3, st.Papers)
	require.NotNil(t, st.Stats)
	assert.Equal(t, stats, *st.Stats)
	assert.True(t, mr.TTL(RunKey("run-1")) > 0, "status hash expires")

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 2, got.Stats.EdgesCreated)
}

func TestReadStatus_Unknown(t *testing.T) {
	rdb, _ := setupRedis(t)
	_, err := ReadStatus(context.Background(), rdb, "nope")
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestRedisSink_LaterEventOverwrites(t *testing.T) {
	rdb, _ := setupRedis(t)
	ctx := context.Background()
	sink := NewRedisSink(rdb)

	require.NoError(t, sink.Report(ctx, Event{RunID: "r", Status: StatusRunning, Message: "starting", Time: time.Now()}))
	require.NoError(t, sink.Report(ctx, Event{RunID: "r", Status: StatusFailed, Message: "boom", Time: time.Now()}))

	st, err := ReadStatus(ctx, rdb, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "boom", st.Message)
	assert.Nil(t, st.Stats)
}

func TestRedisSink_FailureDropsProgressStats(t *testing.T) {
	rdb, _ := setupRedis(t)
	ctx := context.Background()
	sink := NewRedisSink(rdb)

	progress := graph.Stats{NodesProcessed: 10, PapersAdded: 4}
	require.NoError(t, sink.Report(ctx, Event{RunID: "r", Status: StatusRunning, Stats: &progress, Time: time.Now()}))
	require.NoError(t, sink.Report(ctx, Event{RunID: "r", Status: StatusFailed, Message: "boom", Time: time.Now()}))

	st, err := ReadStatus(ctx, rdb, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Nil(t, st.Stats, "stats of a rolled-back run are not kept")
}

type failingSink struct{}

func (failingSink) Report(context.Context, Event) error { return errors.New("nope") }

func TestMultiSink(t *testing.T) {
	rec := &recordingSink{}
	m := MultiSink{failingSink{}, rec, NewLogSink(nil)}

	err := m.Report(context.Background(), Event{RunID: "r", Status: StatusRunning})
	assert.Error(t, err)
	assert.Len(t, rec.events, 1, "later sinks still receive the event")
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid bfs", Request{RunID: "r", CollectionID: "c", Mode: "bfs", Depth: 2}, false},
		{"valid default mode", Request{RunID: "r", CollectionID: "c"}, false},
		{"missing run", Request{CollectionID: "c"}, true},
		{"bad mode", Request{RunID: "r", CollectionID: "c", Mode: "bestfirst"}, true},
		{"negative depth", Request{RunID: "r", CollectionID: "c", Depth: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
