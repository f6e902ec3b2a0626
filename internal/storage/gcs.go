package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/inkwell-blog/apiserver/config"
	"google.golang.org/api/option"
)

// GCSBucket keeps cover assets in a Google Cloud Storage bucket.
type GCSBucket struct {
	client    *storage.Client
	bucket    string
	projectID string
}

func NewGCSBucket(ctx context.Context, cfg config.GCSConfig) (*GCSBucket, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSBucket{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

// EnsureBucket creates the bucket when a project id is configured. Without
// one the bucket must already exist.
func (g *GCSBucket) EnsureBucket(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("check bucket %s: %w", g.bucket, err)
	}
	if strings.TrimSpace(g.projectID) == "" {
		return fmt.Errorf("bucket %s does not exist and no project id is set", g.bucket)
	}
	if err := g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil); err != nil {
		return fmt.Errorf("create bucket %s: %w", g.bucket, err)
	}
	return nil
}

func (g *GCSBucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = assetCacheControl
	if size > 0 && size < int64(w.ChunkSize) {
		// single request upload for small covers
		w.ChunkSize = 0
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Get reports a missing key as ErrNotFound.
func (g *GCSBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// Delete treats an already missing object as deleted.
func (g *GCSBucket) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSBucket) Bucket() string {
	return g.bucket
}

func (g *GCSBucket) Close() error {
	return g.client.Close()
}
