package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRedisKey = "plume:tasks"

type redisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// RedisRunner shares a task list between every plume process pointed at the
// same Redis. Tasks are pushed on the left and popped from the right.
type RedisRunner struct {
	client  redisClient
	key     string
	handler Handler
	workers int
	poll    time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisRunner(client redisClient, key string, handler Handler, workers int, log *zap.Logger) *RedisRunner {
	if key == "" {
		key = DefaultRedisKey
	}
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &RedisRunner{
		client:  client,
		key:     key,
		handler: handler,
		workers: workers,
		poll:    5 * time.Second,
		log:     log,
	}
}

func (r *RedisRunner) Enqueue(ctx context.Context, t Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}

	if err := r.client.LPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("push task for entry %d: %w", t.EntryID, err)
	}
	return nil
}

func (r *RedisRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("cannot start an already started task runner")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.work(ctx, id)
		}(i)
	}

	return nil
}

func (r *RedisRunner) work(ctx context.Context, id int) {
	log := r.log.With(zap.Int("worker", id), zap.String("key", r.key))

	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, r.poll, r.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Warn("failed to pop task", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(r.poll):
			}
			continue
		}

		// BRPop answers with the key followed by the value.
		if len(res) != 2 {
			log.Warn("unexpected pop reply", zap.Strings("reply", res))
			continue
		}

		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			log.Error("dropping malformed task", zap.String("payload", res[1]), zap.Error(err))
			continue
		}

		if err := r.handler(context.WithoutCancel(ctx), t); err != nil {
			log.Error("task failed", zap.Int64("entry_id", t.EntryID), zap.Error(err))
		}
	}
}

func (r *RedisRunner) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return r.client.Close()
}
