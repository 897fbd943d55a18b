package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/storage/queue"
	storageutil "github.com/indieinfra/plume/storage/util"
)

type s3Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error)
}

type minioClient struct {
	*minio.Client
}

// OpenObject stats the object up front because GetObject is lazy and would
// otherwise report a missing key on first read.
func (c minioClient) OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error) {
	obj, err := c.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

var newMinioClient = func(endpoint string, opts *minio.Options) (s3Client, error) {
	c, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return minioClient{c}, nil
}

// StoreImpl queues uploads in S3 or any compatible service (R2, Backblaze, MinIO).
type StoreImpl struct {
	client  s3Client
	bucket  string
	prefix  string
	pattern *storageutil.PathPattern
}

func NewS3QueueStore(cfg *config.S3QueueStrategy) (*StoreImpl, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 queue config is nil")
	}

	region := strings.TrimSpace(cfg.Region)
	if strings.EqualFold(region, "auto") {
		region = ""
	}

	endpointHost := strings.TrimSpace(cfg.Endpoint)
	if endpointHost == "" {
		if region == "" {
			endpointHost = "s3.amazonaws.com"
		} else {
			endpointHost = fmt.Sprintf("s3.%s.amazonaws.com", region)
		}
	} else if parsed, err := url.Parse(endpointHost); err == nil && parsed.Host != "" {
		endpointHost = parsed.Host
	}

	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := newMinioClient(endpointHost, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyId, cfg.SecretKeyId, ""),
		Secure:       !cfg.DisableSSL,
		Region:       region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to verify s3 bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("s3 bucket %q does not exist or is not accessible", cfg.Bucket)
	}

	pattern := storageutil.DefaultQueuePattern()
	if cfg.PathPattern != "" {
		pattern = storageutil.NewPathPattern(cfg.PathPattern)
	}

	return &StoreImpl{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		pattern: pattern,
	}, nil
}

func (s *StoreImpl) Key(id int64, filename string, now time.Time) (string, error) {
	key, err := s.pattern.Generate(strconv.FormatInt(id, 10), filename, now)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return key, nil
}

func (s *StoreImpl) Put(ctx context.Context, key string, r io.Reader) error {
	if key == "" {
		return fmt.Errorf("queue key is required")
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("upload to s3 failed: %w", err)
	}
	return nil
}

func (s *StoreImpl) Size(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, s.wrapMissing(err, key, "stat")
	}
	return info.Size, nil
}

func (s *StoreImpl) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.client.OpenObject(ctx, s.bucket, key)
	if err != nil {
		return nil, s.wrapMissing(err, key, "open")
	}
	return rc, nil
}

func (s *StoreImpl) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("queue key is required")
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete from s3 failed: %w", err)
	}
	return nil
}

func (s *StoreImpl) wrapMissing(err error, key, op string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, key)
	}
	return fmt.Errorf("%s from s3 failed: %w", op, err)
}
