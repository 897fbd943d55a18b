package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LocalRunner is an in-process worker pool fed by a buffered channel.
type LocalRunner struct {
	handler Handler
	workers int
	tasks   chan Task
	log     *zap.Logger

	mu      sync.RWMutex
	wg      sync.WaitGroup
	started bool
	closed  bool
}

func NewLocalRunner(handler Handler, workers, backlog int, log *zap.Logger) *LocalRunner {
	if workers < 1 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &LocalRunner{
		handler: handler,
		workers: workers,
		tasks:   make(chan Task, backlog),
		log:     log,
	}
}

func (r *LocalRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRunnerClosed
	}
	if r.started {
		return errors.New("cannot start an already started task runner")
	}

	r.started = true
	// Tasks already accepted are finished by Close, not abandoned on
	// shutdown.
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.work(ctx, id)
		}(i)
	}

	return nil
}

func (r *LocalRunner) work(ctx context.Context, id int) {
	log := r.log.With(zap.Int("worker", id))
	log.Debug("task worker started")

	for t := range r.tasks {
		if err := r.handler(ctx, t); err != nil {
			log.Error("task failed", zap.Int64("entry_id", t.EntryID), zap.Error(err))
		}
	}

	log.Debug("task worker stopped")
}

// Enqueue never waits: a full backlog is reported as ErrBacklogFull.
func (r *LocalRunner) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRunnerClosed
	}

	select {
	case r.tasks <- t:
		return nil
	default:
		return fmt.Errorf("%w: entry %d", ErrBacklogFull, t.EntryID)
	}
}

// Close drains the backlog before returning.
func (r *LocalRunner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}
