package storage

import (
	"context"
	"fmt"

	"beatvault/config"
	"beatvault/logger"
)

// Open constructs the remote bucket selected by cfg.BlobDriver. It is called
// once per process; the result is shared by reference.
func Open(ctx context.Context, cfg *config.Config) (Bucket, error) {
	switch cfg.BlobDriver {
	case config.DriverMinio:
		b, err := NewMinioBucket(MinioConfig{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			Region:    cfg.BlobRegion,
			UseSSL:    cfg.BlobUseSSL,
			CDNOrigin: cfg.CDNOrigin,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("blob store ready", logger.String("driver", cfg.BlobDriver), logger.String("bucket", cfg.BlobBucket))
		return b, nil
	case config.DriverS3:
		b, err := NewS3Bucket(ctx, S3Config{
			Bucket:    cfg.BlobBucket,
			Region:    cfg.BlobRegion,
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			CDNOrigin: cfg.CDNOrigin,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("blob store ready", logger.String("driver", cfg.BlobDriver), logger.String("bucket", cfg.BlobBucket))
		return b, nil
	case config.DriverLocal:
		return NewLocalBucket(cfg.LocalDataDir, cfg.CDNOrigin), nil
	default:
		return nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
	}
}

// OpenForBackend returns the bucket every component should share: the remote
// store when the resolved backend is remote, otherwise a LocalBucket rooted at
// LocalDataDir so that catalog objects and state documents live side by side.
func OpenForBackend(ctx context.Context, cfg *config.Config) (Bucket, error) {
	if cfg.StateBackend == config.BackendLocal {
		logger.Warn("using local filesystem storage", logger.String("dir", cfg.LocalDataDir))
		return NewLocalBucket(cfg.LocalDataDir, cfg.CDNOrigin), nil
	}
	if !cfg.HasBlobCredentials() {
		return nil, fmt.Errorf("remote storage selected but blob credentials are missing")
	}
	return Open(ctx, cfg)
}
