// Package ingest turns an authenticated upload into a committed entry whose
// bytes wait in the queue store for processing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/processing"
	"github.com/indieinfra/plume/storage/entries"
	"github.com/indieinfra/plume/storage/queue"
)

const msgNoFile = "You must provide a file."

type Detector interface {
	SniffMedia(ctx context.Context, upload io.ReadSeeker, filename string) (media.Result, error)
}

type TaskRunner interface {
	Enqueue(ctx context.Context, t processing.Task) error
}

type Coordinator struct {
	store    entries.Store
	queue    queue.Store
	detector Detector
	runner   TaskRunner
	uploads  config.Uploads
	// feedURL builds the notification URL handed to processing.
	feedURL func(username string) string
	now     func() time.Time
	log     *zap.Logger
}

func NewCoordinator(store entries.Store, q queue.Store, detector Detector, runner TaskRunner, uploads config.Uploads, feedURL func(string) string, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:    store,
		queue:    q,
		detector: detector,
		runner:   runner,
		uploads:  uploads,
		feedURL:  feedURL,
		now:      time.Now,
		log:      log,
	}
}

// Submit ingests sub on behalf of owner. User mistakes come back as
// *FieldError; anything else is an internal failure. On any error nothing
// is left behind in the entry store or the queue.
func (c *Coordinator) Submit(ctx context.Context, owner *entries.User, sub Submission) (*entries.Entry, error) {
	if sub.File == nil || sub.Filename == "" {
		return nil, NewFieldError("file", msgNoFile)
	}

	// The running total is read fresh for every submission.
	user, err := c.store.User(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("load uploader: %w", err)
	}

	if err := CheckBeforeWrite(user, c.uploads); err != nil {
		return nil, err
	}

	tags, err := sub.Validate(c.uploads.TagsMaxLength)
	if err != nil {
		return nil, err
	}

	filename := NormalizeFilename(sub.Filename)

	result, err := c.detector.SniffMedia(ctx, sub.File, filename)
	if err != nil {
		if media.IsUnsupported(err) {
			return nil, fieldErrorFrom("file", err, err.Error())
		}
		return nil, err
	}

	title := sub.Title
	if title == "" {
		title = strings.TrimSuffix(sub.Filename, filepath.Ext(sub.Filename))
	}

	e := &entries.Entry{
		OwnerID:     user.ID,
		Title:       title,
		Description: sub.Description,
		License:     sub.License,
		Tags:        tags,
		MediaType:   result.Type,
	}
	if err := c.store.Reserve(ctx, e); err != nil {
		return nil, err
	}

	tx := &submission{c: c, entry: e}
	defer tx.rollback(ctx)

	e.Slug, err = entries.GenerateSlug(title, sub.Slug, e.ID, func(candidate string) (bool, error) {
		return c.store.SlugTaken(ctx, user.ID, candidate, e.ID)
	})
	if err != nil {
		return nil, err
	}

	if e.QueuedFile, err = c.queue.Key(e.ID, filename, e.CreatedAt); err != nil {
		return nil, err
	}

	tx.queued = true
	if err := c.queue.Put(ctx, e.QueuedFile, sub.File); err != nil {
		return nil, fmt.Errorf("queue upload: %w", err)
	}

	size, err := c.queue.Size(ctx, e.QueuedFile)
	if err != nil {
		return nil, fmt.Errorf("measure queued upload: %w", err)
	}

	if err := CheckAfterWrite(user, c.uploads, size); err != nil {
		return nil, err
	}

	e.FileSize = size
	limit, limited := EffectiveLimit(user, c.uploads)
	if !limited {
		limit = -1
	}

	if err := c.store.Commit(ctx, e, limit); err != nil {
		if errors.Is(err, entries.ErrQuotaExceeded) {
			// Another upload by the same user committed first.
			return nil, fieldErrorFrom("file", err, msgOverLimit)
		}
		return nil, err
	}

	task := processing.Task{EntryID: e.ID, MediaType: e.MediaType}
	if c.feedURL != nil {
		task.NotifyURL = c.feedURL(user.Username)
	}
	if err := c.runner.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("hand off entry %d: %w", e.ID, err)
	}
	tx.done = true

	if err := c.store.Subscribe(ctx, user.ID, e.ID); err != nil {
		c.log.Warn("failed to subscribe uploader to comments", zap.Int64("entry_id", e.ID), zap.Error(err))
	}

	c.log.Info("media submitted",
		zap.Int64("entry_id", e.ID),
		zap.String("user", user.Username),
		zap.String("media_type", e.MediaType),
		zap.Int("tier", result.Tier),
		zap.Int64("size", e.FileSize),
	)

	return e, nil
}

// submission undoes a partially ingested upload.
type submission struct {
	c      *Coordinator
	entry  *entries.Entry
	queued bool
	done   bool
}

func (s *submission) rollback(ctx context.Context) {
	if s.done {
		return
	}

	// Cleanup must run even when the request context is gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	log := s.c.log.With(zap.Int64("entry_id", s.entry.ID))

	if s.queued {
		if err := s.c.queue.Delete(ctx, s.entry.QueuedFile); err != nil {
			log.Error("failed to discard queued upload", zap.String("key", s.entry.QueuedFile), zap.Error(err))
		}
	}

	// Deleting a committed entry also refunds its size.
	if err := s.c.store.Delete(ctx, s.entry.ID); err != nil && !errors.Is(err, entries.ErrNotFound) {
		log.Error("failed to delete reserved entry", zap.Error(err))
	}
}
