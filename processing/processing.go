// Package processing runs the asynchronous work that follows a successful
// submission: reading the queued bytes, recording media metadata and
// announcing the uploader's feed.
package processing

import (
	"context"
	"errors"
)

var (
	ErrRunnerClosed = errors.New("task runner is closed")
	// ErrBacklogFull means the runner refused a task instead of waiting
	// for room.
	ErrBacklogFull = errors.New("task backlog is full")
)

// Task is handed off once an entry has been committed.
type Task struct {
	EntryID   int64  `json:"entry_id"`
	MediaType string `json:"media_type"`
	// NotifyURL is published to the configured hubs after processing.
	NotifyURL string `json:"notify_url"`
}

// Handler executes a single task.
type Handler func(ctx context.Context, t Task) error

type Runner interface {
	// Enqueue hands t off without waiting for it to run.
	Enqueue(ctx context.Context, t Task) error
	// Start launches the workers. It does not block.
	Start(ctx context.Context) error
	// Close stops accepting tasks and waits for accepted ones to finish.
	// Handlers keep a live context until then, even after the context
	// passed to Start is cancelled.
	Close() error
}
