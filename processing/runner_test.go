package processing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/indieinfra/plume/config"
)

type recorder struct {
	mu    sync.Mutex
	tasks []Task
	done  chan struct{}
}

func newRecorder(n int) *recorder {
	return &recorder{done: make(chan struct{}, n)}
}

func (r *recorder) handle(ctx context.Context, t Task) error {
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
	r.done <- struct{}{}
	if t.EntryID < 0 {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for task %d", i+1)
		}
	}
}

func TestLocalRunner_RunsEveryTask(t *testing.T) {
	rec := newRecorder(10)
	r := NewLocalRunner(rec.handle, 3, 10, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	require.Error(t, r.Start(ctx), "second start must fail")

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Enqueue(ctx, Task{EntryID: int64(i)}))
	}
	require.NoError(t, r.Enqueue(ctx, Task{EntryID: -1}))
	rec.wait(t, 6)

	require.NoError(t, r.Close())
	assert.Len(t, rec.tasks, 6)
	assert.ErrorIs(t, r.Enqueue(ctx, Task{EntryID: 9}), ErrRunnerClosed)
	assert.NoError(t, r.Close())
}

func TestLocalRunner_CloseDrainsBacklog(t *testing.T) {
	rec := newRecorder(4)
	r := NewLocalRunner(rec.handle, 1, 4, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Enqueue(ctx, Task{EntryID: int64(i)}))
	}
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Close())

	assert.Len(t, rec.tasks, 4)
}

func TestLocalRunner_EnqueueDoesNotWaitForRoom(t *testing.T) {
	r := NewLocalRunner(func(context.Context, Task) error { return nil }, 1, 1, nil)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, Task{EntryID: 1}))

	done := make(chan error, 1)
	go func() { done <- r.Enqueue(ctx, Task{EntryID: 2}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBacklogFull)
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue blocked on a full backlog")
	}
}

func TestLocalRunner_HandlersOutliveShutdownSignal(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var (
		mu   sync.Mutex
		errs []error
	)
	handler := func(ctx context.Context, t Task) error {
		started <- struct{}{}
		<-release
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		return nil
	}

	r := NewLocalRunner(handler, 1, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Enqueue(ctx, Task{EntryID: 1}))
	require.NoError(t, r.Enqueue(ctx, Task{EntryID: 2}))

	<-started
	cancel()
	close(release)
	require.NoError(t, r.Close())

	assert.Equal(t, []error{nil, nil}, errs, "accepted tasks must run with a live context")
}

func TestLocalRunner_EnqueueHonoursContext(t *testing.T) {
	r := NewLocalRunner(func(context.Context, Task) error { return nil }, 1, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Enqueue(ctx, Task{EntryID: 1}), context.Canceled)
}

type stubRedis struct {
	mu     sync.Mutex
	list   []string
	closed bool
}

func (s *stubRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range values {
		s.list = append([]string{string(v.([]byte))}, s.list...)
	}
	return redis.NewIntResult(int64(len(s.list)), nil)
}

func (s *stubRedis) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	s.mu.Lock()
	if n := len(s.list); n > 0 {
		v := s.list[n-1]
		s.list = s.list[:n-1]
		s.mu.Unlock()
		return redis.NewStringSliceResult([]string{keys[0], v}, nil)
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(10 * time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

func (s *stubRedis) Close() error {
	s.closed = true
	return nil
}

func TestRedisRunner_EnqueueAndConsume(t *testing.T) {
	client := &stubRedis{}
	rec := newRecorder(3)
	r := NewRedisRunner(client, "", rec.handle, 1, zaptest.NewLogger(t))
	ctx := context.Background()

	task := Task{EntryID: 7, MediaType: "audio", NotifyURL: "https://example.test/feed"}
	require.NoError(t, r.Enqueue(ctx, task))

	raw, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Equal(t, []string{string(raw)}, client.list)

	// Malformed payloads are dropped without stopping the worker.
	client.LPush(ctx, DefaultRedisKey, []byte("{not json"))
	require.NoError(t, r.Enqueue(ctx, Task{EntryID: 8}))

	require.NoError(t, r.Start(ctx))
	rec.wait(t, 2)
	require.NoError(t, r.Close())

	assert.Equal(t, []Task{task, {EntryID: 8}}, rec.tasks)
	assert.True(t, client.closed)
}

func TestNewRunner(t *testing.T) {
	handler := func(context.Context, Task) error { return nil }

	r, err := NewRunner(&config.Processing{Strategy: "local", Workers: 2}, handler, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalRunner{}, r)

	_, err = NewRunner(&config.Processing{Strategy: "redis"}, handler, nil)
	assert.Error(t, err)

	r, err = NewRunner(&config.Processing{Strategy: "redis", Redis: &config.RedisProcessing{Address: "localhost:6379"}}, handler, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisRunner{}, r)
	assert.Equal(t, DefaultRedisKey, r.(*RedisRunner).key)
	require.NoError(t, r.Close())

	_, err = NewRunner(&config.Processing{Strategy: "carrier-pigeon"}, handler, nil)
	assert.Error(t, err)
}
