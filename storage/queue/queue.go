// Package queue holds uploaded bytes between admission and processing.
package queue

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("queued file not found")

type Store interface {
	// Key builds the storage key for the upload of entry id.
	Key(id int64, filename string, now time.Time) (string, error)
	Put(ctx context.Context, key string, r io.Reader) error
	// Size reports the stored length of key as the store sees it.
	Size(ctx context.Context, key string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
