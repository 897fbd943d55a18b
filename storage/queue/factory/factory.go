package factory

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/storage/queue"
	"github.com/indieinfra/plume/storage/queue/filesystem"
	"github.com/indieinfra/plume/storage/queue/s3"
)

// Factory builds a queue store for the provided queue config.
type Factory func(*config.Queue, *zap.Logger) (queue.Store, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register adds or replaces a queue store factory for the given strategy name.
func Register(strategy string, factory Factory) {
	mu.Lock()
	registry[strategy] = factory
	mu.Unlock()
}

func Get(strategy string) (Factory, bool) {
	mu.RLock()
	f, ok := registry[strategy]
	mu.RUnlock()
	return f, ok
}

// Create builds a queue store using the factory registered for the configured strategy.
func Create(cfg *config.Queue, log *zap.Logger) (queue.Store, error) {
	if f, ok := Get(cfg.Strategy); ok {
		return f(cfg, log)
	}

	return nil, fmt.Errorf("unknown queue strategy %q", cfg.Strategy)
}

func init() {
	Register("noop", func(cfg *config.Queue, log *zap.Logger) (queue.Store, error) {
		return queue.NewNoopStore(log), nil
	})
	Register("s3", func(cfg *config.Queue, log *zap.Logger) (queue.Store, error) {
		return s3.NewS3QueueStore(cfg.S3)
	})
	Register("filesystem", func(cfg *config.Queue, log *zap.Logger) (queue.Store, error) {
		return filesystem.NewFilesystemQueueStore(cfg.Filesystem)
	})
}
