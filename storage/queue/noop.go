package queue

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	storageutil "github.com/indieinfra/plume/storage/util"
)

// NoopStore measures and discards uploads. Entries admitted through it can
// never be processed.
type NoopStore struct {
	log   *zap.Logger
	mu    sync.Mutex
	sizes map[string]int64
}

func NewNoopStore(log *zap.Logger) *NoopStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoopStore{log: log, sizes: map[string]int64{}}
}

func (s *NoopStore) Key(id int64, filename string, now time.Time) (string, error) {
	return storageutil.DefaultQueuePattern().Generate(strconv.FormatInt(id, 10), filename, now)
}

func (s *NoopStore) Put(ctx context.Context, key string, r io.Reader) error {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sizes[key] = n
	s.mu.Unlock()

	s.log.Info("discarded no-op queue upload", zap.String("key", key), zap.Int64("size", n))
	return nil
}

func (s *NoopStore) Size(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.sizes[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return n, nil
}

func (s *NoopStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: no-op queue keeps nothing (%s)", ErrNotFound, key)
}

func (s *NoopStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.sizes, key)
	s.mu.Unlock()

	s.log.Debug("no-op queue delete", zap.String("key", key))
	return nil
}
