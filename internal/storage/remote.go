package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/inkwell-blog/apiserver/config"
)

const assetCacheControl = "public, max-age=86400"

// Bucket is an ObjectStorage that owns a client connection.
type Bucket interface {
	ObjectStorage
	io.Closer
}

// OpenBucket connects the remote backend named by cfg.Driver and makes sure
// its bucket exists. The local driver has no bucket and yields nil.
func OpenBucket(ctx context.Context, cfg config.StorageConfig) (Bucket, error) {
	var (
		b   Bucket
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "local":
		return nil, nil
	case "minio", "s3":
		b, err = NewMinioBucket(cfg.Minio)
	case "gcs":
		b, err = NewGCSBucket(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := b.EnsureBucket(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// NewPlacer builds a Placer for cfg, backed by bucket when it is non-nil.
func NewPlacer(cfg config.StorageConfig, bucket Bucket) (*Placer, error) {
	if bucket == nil {
		return NewLocalPlacer(cfg.AssetRoot, cfg.UploadsDir)
	}
	return NewRemotePlacer(cfg.AssetRoot, cfg.UploadsDir, bucket)
}
