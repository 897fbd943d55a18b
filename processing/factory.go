package processing

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/indieinfra/plume/config"
)

const localBacklog = 256

// NewRunner builds the runner selected by cfg.Strategy.
func NewRunner(cfg *config.Processing, handler Handler, log *zap.Logger) (Runner, error) {
	switch cfg.Strategy {
	case "local":
		return NewLocalRunner(handler, cfg.Workers, localBacklog, log), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis processing config is nil")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisRunner(client, cfg.Redis.Key, handler, cfg.Workers, log), nil
	default:
		return nil, fmt.Errorf("unknown processing strategy %q", cfg.Strategy)
	}
}
