package processing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/storage/entries"
	"github.com/indieinfra/plume/storage/queue"
)

// EntryStore is the slice of the entry store processing needs.
type EntryStore interface {
	Claim(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (*entries.Entry, error)
	Finish(ctx context.Context, id int64, state entries.State, meta media.Metadata) error
}

type Processor struct {
	store     EntryStore
	queue     queue.Store
	registry  *media.Registry
	publisher *Publisher
	tempDir   string
	log       *zap.Logger
}

func NewProcessor(store EntryStore, q queue.Store, registry *media.Registry, publisher *Publisher, tempDir string, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		store:     store,
		queue:     q,
		registry:  registry,
		publisher: publisher,
		tempDir:   tempDir,
		log:       log,
	}
}

// Handle processes one task. Tasks for entries that are already claimed or
// finished are skipped, so redelivery is harmless.
func (p *Processor) Handle(ctx context.Context, t Task) error {
	log := p.log.With(zap.Int64("entry_id", t.EntryID), zap.String("media_type", t.MediaType))

	claimed, err := p.store.Claim(ctx, t.EntryID)
	if err != nil {
		return fmt.Errorf("claim entry %d: %w", t.EntryID, err)
	}
	if !claimed {
		log.Debug("entry already claimed or finished, skipping")
		return nil
	}

	e, err := p.store.Get(ctx, t.EntryID)
	if err != nil {
		return fmt.Errorf("load entry %d: %w", t.EntryID, err)
	}

	meta, err := p.process(ctx, e)
	if err != nil {
		if ferr := p.store.Finish(ctx, e.ID, entries.StateFailed, media.Metadata{}); ferr != nil {
			log.Error("failed to mark entry as failed", zap.Error(ferr))
		}
		return err
	}

	if err := p.store.Finish(ctx, e.ID, entries.StateProcessed, meta); err != nil {
		return fmt.Errorf("finish entry %d: %w", e.ID, err)
	}
	log.Info("entry processed", zap.Int("width", meta.Width), zap.Int("height", meta.Height), zap.Float64("duration", meta.Duration))

	if p.publisher != nil && t.NotifyURL != "" {
		if err := p.publisher.Publish(ctx, t.NotifyURL); err != nil {
			log.Warn("failed to notify hubs", zap.String("topic", t.NotifyURL), zap.Error(err))
		}
	}

	return nil
}

func (p *Processor) process(ctx context.Context, e *entries.Entry) (media.Metadata, error) {
	manager, err := p.registry.Manager(e.MediaType)
	if err != nil {
		return media.Metadata{}, err
	}

	local, cleanup, err := p.localCopy(ctx, e.QueuedFile)
	if err != nil {
		return media.Metadata{}, err
	}
	defer cleanup()

	meta, err := manager.Process(ctx, media.Job{
		EntryID:  e.ID,
		Filename: path.Base(e.QueuedFile),
		Path:     local,
	})
	if err != nil {
		return media.Metadata{}, fmt.Errorf("%s processing of entry %d: %w", manager.Type(), e.ID, err)
	}
	return meta, nil
}

func (p *Processor) localCopy(ctx context.Context, key string) (string, func(), error) {
	rc, err := p.queue.Open(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("open queued file: %w", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(p.tempDir, "plume-process-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	_, err = io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("copy queued file: %w", err)
	}

	return tmp.Name(), cleanup, nil
}
