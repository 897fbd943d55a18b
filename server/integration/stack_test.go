//go:build testcontainers

package integration

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/ingest"
	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/processing"
	"github.com/indieinfra/plume/server"
	"github.com/indieinfra/plume/server/state"
	"github.com/indieinfra/plume/storage/entries"
	"github.com/indieinfra/plume/storage/queue"
)

type recordingRunner struct {
	mu    sync.Mutex
	tasks []processing.Task
}

func (r *recordingRunner) Enqueue(_ context.Context, t processing.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return nil
}

type stack struct {
	srv   *httptest.Server
	store entries.Store
	queue queue.Store
}

func newStack(t *testing.T, db *config.Database, q queue.Store, uploads config.Uploads) *stack {
	t.Helper()
	log := zaptest.NewLogger(t)

	store, err := entries.NewSQLStore(db, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry, err := media.NewBuiltinRegistry(config.DefaultMediaTypes, "ffprobe")
	require.NoError(t, err)
	detector := media.NewDetector(registry,
		media.WithTempDir(t.TempDir()),
		media.WithLookPath(func(name string) (string, error) { return "/usr/bin/" + name, nil }))

	cfg := &config.Config{
		Server: config.Server{
			PublicUrl: "https://media.example",
			Limits:    config.ServerLimits{MaxPayloadSize: 16 << 20, MaxMultipartMem: 1 << 20},
		},
		Uploads: uploads,
	}
	coord := ingest.NewCoordinator(store, q, detector, &recordingRunner{}, uploads, nil, log)

	srv := httptest.NewServer(server.NewHandler(&state.PlumeState{Cfg: cfg, Store: store, Submitter: coord, Registry: registry, Log: log}))
	t.Cleanup(srv.Close)

	return &stack{srv: srv, store: store, queue: q}
}

// submit posts a PNG padded to size bytes.
func (s *stack) submit(t *testing.T, token, title string, size int) *http.Response {
	t.Helper()

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	if pad := size - img.Len(); pad > 0 {
		img.Write(make([]byte, pad))
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("title", title))
	fw, err := w.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/submit", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func (s *stack) get(t *testing.T, path string) *http.Response {
	t.Helper()

	res, err := s.srv.Client().Get(s.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}
