package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/storage/entries"
	"github.com/indieinfra/plume/storage/queue"
	"github.com/indieinfra/plume/storage/queue/filesystem"
)

type memEntryStore struct {
	mu       sync.Mutex
	entries  map[int64]*entries.Entry
	finished map[int64]media.Metadata
}

func newMemEntryStore(es ...*entries.Entry) *memEntryStore {
	s := &memEntryStore{entries: map[int64]*entries.Entry{}, finished: map[int64]media.Metadata{}}
	for _, e := range es {
		s.entries[e.ID] = e
	}
	return s
}

func (s *memEntryStore) Claim(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false, nil
	}
	if e.State != entries.StateUnprocessed {
		return false, nil
	}
	e.State = entries.StateProcessing
	return true, nil
}

func (s *memEntryStore) Get(ctx context.Context, id int64) (*entries.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, entries.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memEntryStore) Finish(ctx context.Context, id int64, state entries.State, meta media.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id].State = state
	s.finished[id] = meta
	return nil
}

func (s *memEntryStore) state(id int64) entries.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id].State
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newFileQueue(t *testing.T) queue.Store {
	t.Helper()

	store, err := filesystem.NewFilesystemQueueStore(&config.FilesystemQueueStrategy{Path: t.TempDir()})
	require.NoError(t, err)
	return store
}

func imageRegistry(t *testing.T) *media.Registry {
	t.Helper()

	reg, err := media.NewBuiltinRegistry([]string{"image"}, "")
	require.NoError(t, err)
	return reg
}

func TestProcessor_RecordsMetadataAndNotifiesHubs(t *testing.T) {
	ctx := context.Background()

	var pings []string
	var mu sync.Mutex
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		pings = append(pings, r.PostForm.Get("hub.mode")+" "+r.PostForm.Get("hub.url"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hub.Close()

	fs := newFileQueue(t)
	require.NoError(t, fs.Put(ctx, "media_entries/1/a.png", bytes.NewReader(pngBytes(t, 7, 5))))

	store := newMemEntryStore(&entries.Entry{ID: 1, MediaType: "image", State: entries.StateUnprocessed, QueuedFile: "media_entries/1/a.png"})
	p := NewProcessor(store, fs, imageRegistry(t), NewPublisher([]string{hub.URL}, nil), t.TempDir(), zaptest.NewLogger(t))

	require.NoError(t, p.Handle(ctx, Task{EntryID: 1, MediaType: "image", NotifyURL: "https://example.test/u/alice/atom/"}))

	assert.Equal(t, entries.StateProcessed, store.state(1))
	assert.Equal(t, media.Metadata{Width: 7, Height: 5, MIMEType: "image/png"}, store.finished[1])
	assert.Equal(t, []string{"publish https://example.test/u/alice/atom/"}, pings)

	// Redelivery is a no-op.
	require.NoError(t, p.Handle(ctx, Task{EntryID: 1, MediaType: "image"}))
	assert.Len(t, pings, 1)
}

func TestProcessor_MarksFailures(t *testing.T) {
	ctx := context.Background()
	fs := newFileQueue(t)
	require.NoError(t, fs.Put(ctx, "media_entries/2/a.png", bytes.NewReader([]byte("not an image"))))

	store := newMemEntryStore(
		&entries.Entry{ID: 2, MediaType: "image", State: entries.StateUnprocessed, QueuedFile: "media_entries/2/a.png"},
		&entries.Entry{ID: 3, MediaType: "image", State: entries.StateUnprocessed, QueuedFile: "media_entries/3/missing.png"},
		&entries.Entry{ID: 4, MediaType: "video", State: entries.StateUnprocessed, QueuedFile: "media_entries/2/a.png"},
	)
	p := NewProcessor(store, fs, imageRegistry(t), nil, t.TempDir(), zaptest.NewLogger(t))

	assert.Error(t, p.Handle(ctx, Task{EntryID: 2}))
	assert.Equal(t, entries.StateFailed, store.state(2))

	err := p.Handle(ctx, Task{EntryID: 3})
	assert.True(t, errors.Is(err, queue.ErrNotFound), "got %v", err)
	assert.Equal(t, entries.StateFailed, store.state(3))

	err = p.Handle(ctx, Task{EntryID: 4})
	assert.True(t, errors.Is(err, media.ErrUnknownMediaType), "got %v", err)
	assert.Equal(t, entries.StateFailed, store.state(4))
}

func TestPublisher_JoinsHubFailures(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	p := NewPublisher([]string{ok.URL, bad.URL}, nil)
	err := p.Publish(context.Background(), "https://example.test/feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.URL)
	assert.NotContains(t, err.Error(), ok.URL+":")

	assert.NoError(t, NewPublisher(nil, nil).Publish(context.Background(), "https://example.test/feed"))
}
