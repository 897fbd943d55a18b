package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/indieinfra/plume/storage/entries"
	"github.com/indieinfra/plume/storage/queue"
)

const gcBatchSize = 100

// StaleStore is the part of the entry store garbage collection needs.
type StaleStore interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]*entries.Entry, error)
	Delete(ctx context.Context, id int64) error
}

// Collector deletes entries that never left the unprocessed state, together
// with their queued bytes.
type Collector struct {
	store  StaleStore
	queue  queue.Store
	maxAge time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewCollector(store StaleStore, q queue.Store, maxAge time.Duration, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{store: store, queue: q, maxAge: maxAge, now: time.Now, log: log}
}

// Run collects every entry older than the max age and reports how many were
// removed. A failure on one entry is logged and does not stop the sweep.
func (c *Collector) Run(ctx context.Context) (int, error) {
	before := c.now().Add(-c.maxAge)
	removed := 0
	skip := map[int64]bool{}

	for {
		limit := gcBatchSize + len(skip)
		stale, err := c.store.ListStale(ctx, before, limit)
		if err != nil {
			return removed, err
		}

		progressed := false
		for _, e := range stale {
			if skip[e.ID] {
				continue
			}
			if err := c.collect(ctx, e); err != nil {
				c.log.Error("failed to collect stale entry", zap.Int64("entry_id", e.ID), zap.Error(err))
				skip[e.ID] = true
				continue
			}
			removed++
			progressed = true
		}

		if !progressed || len(stale) < limit {
			break
		}
	}

	if removed > 0 {
		c.log.Info("collected stale entries", zap.Int("count", removed), zap.Time("before", before))
	}
	return removed, nil
}

func (c *Collector) collect(ctx context.Context, e *entries.Entry) error {
	if e.QueuedFile != "" {
		if err := c.queue.Delete(ctx, e.QueuedFile); err != nil && !errors.Is(err, queue.ErrNotFound) {
			return err
		}
	}

	if err := c.store.Delete(ctx, e.ID); err != nil && !errors.Is(err, entries.ErrNotFound) {
		return err
	}
	return nil
}

// Schedule registers the collector on cr using a standard cron spec.
func (c *Collector) Schedule(cr *cron.Cron, spec string) (cron.EntryID, error) {
	return cr.AddFunc(spec, func() {
		if _, err := c.Run(context.Background()); err != nil {
			c.log.Error("garbage collection failed", zap.Error(err))
		}
	})
}
