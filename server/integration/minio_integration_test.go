//go:build testcontainers

package integration

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/storage/queue/s3"
)

func newMinioQueue(t *testing.T) (*s3.StoreImpl, *minio.Client, string) {
	t.Helper()
	ctx := context.Background()

	cont, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err, "failed to start minio container")
	t.Cleanup(func() { _ = cont.Terminate(ctx) })

	endpoint, err := cont.ConnectionString(ctx)
	require.NoError(t, err)

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cont.Username, cont.Password, ""),
		Secure:       false,
		BucketLookup: minio.BucketLookupPath,
	})
	require.NoError(t, err)

	bucket := "plume-queue"
	require.NoError(t, cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))

	store, err := s3.NewS3QueueStore(&config.S3QueueStrategy{
		AccessKeyId:    "minioadmin",
		SecretKeyId:    "minioadmin",
		Bucket:         bucket,
		Endpoint:       endpoint,
		Prefix:         "queue",
		ForcePathStyle: true,
		DisableSSL:     true,
	})
	require.NoError(t, err)

	return store, cli, bucket
}

func TestMinio_SubmitQueuesBytes(t *testing.T) {
	q, cli, bucket := newMinioQueue(t)
	s := newStack(t, &config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "plume.db")}, q, config.Uploads{})

	_, err := s.store.CreateUser(context.Background(), "alice", -1, "s3cret")
	require.NoError(t, err)

	res := s.submit(t, "s3cret", "Sunset", 4096)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	pending, err := s.store.ListStale(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	size, err := q.Size(context.Background(), pending[0].QueuedFile)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
	assert.Equal(t, size, pending[0].FileSize)

	var objects int
	for obj := range cli.ListObjects(context.Background(), bucket, minio.ListObjectsOptions{Prefix: "queue/", Recursive: true}) {
		require.NoError(t, obj.Err)
		objects++
	}
	assert.Equal(t, 1, objects)

	rc, err := q.Open(context.Background(), pending[0].QueuedFile)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Len(t, data, 4096)
}

func TestMinio_RejectedSubmissionLeavesNothing(t *testing.T) {
	q, cli, bucket := newMinioQueue(t)
	s := newStack(t, &config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "plume.db")}, q,
		config.Uploads{MaxFileSize: int64Ptr(1024)})

	_, err := s.store.CreateUser(context.Background(), "alice", -1, "s3cret")
	require.NoError(t, err)

	res := s.submit(t, "s3cret", "Too big", 4096)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	for obj := range cli.ListObjects(context.Background(), bucket, minio.ListObjectsOptions{Recursive: true}) {
		t.Fatalf("expected empty bucket, found %q (%v)", obj.Key, obj.Err)
	}
}
