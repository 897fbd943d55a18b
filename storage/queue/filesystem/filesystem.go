package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/storage/queue"
	storageutil "github.com/indieinfra/plume/storage/util"
)

// StoreImpl keeps queued uploads in a local directory.
type StoreImpl struct {
	basePath string
	pattern  *storageutil.PathPattern
	mu       sync.RWMutex
}

func NewFilesystemQueueStore(cfg *config.FilesystemQueueStrategy) (*StoreImpl, error) {
	if cfg == nil {
		return nil, fmt.Errorf("filesystem queue config is nil")
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	pattern := storageutil.DefaultQueuePattern()
	if cfg.PathPattern != "" {
		pattern = storageutil.NewPathPattern(cfg.PathPattern)
	}

	return &StoreImpl{basePath: filepath.Clean(cfg.Path), pattern: pattern}, nil
}

func (s *StoreImpl) Key(id int64, filename string, now time.Time) (string, error) {
	return s.pattern.Generate(strconv.FormatInt(id, 10), filename, now)
}

// Put refuses to overwrite an existing key.
func (s *StoreImpl) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	absPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create queued file: %w", err)
	}

	_, err = io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(absPath)
		return fmt.Errorf("failed to write queued file: %w", err)
	}

	return nil
}

func (s *StoreImpl) Size(ctx context.Context, key string) (int64, error) {
	absPath, err := s.resolve(key)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", queue.ErrNotFound, key)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (s *StoreImpl) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	absPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

func (s *StoreImpl) Delete(ctx context.Context, key string) error {
	absPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(absPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove queued file: %w", err)
	}

	// Per-entry directories are left empty otherwise.
	dir := filepath.Dir(absPath)
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if os.Remove(dir) != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

func (s *StoreImpl) resolve(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("invalid queue key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}
