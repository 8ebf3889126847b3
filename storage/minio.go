package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"beatvault/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings for a MinIO / R2 style endpoint.
type MinioConfig struct {
	Endpoint  string // host[:port]; a scheme prefix is tolerated and stripped
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	CDNOrigin string
}

// MinioBucket 封装了 MinIO 客户端
type MinioBucket struct {
	client     *minio.Client
	bucketName string
	cdnOrigin  string
}

// NewMinioBucket 创建一个新的 MinIO 客户端
func NewMinioBucket(cfg MinioConfig) (*MinioBucket, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, secure = rest, true
	} else if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, secure = rest, false
	}
	endpoint = strings.TrimRight(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioBucket{
		client:     client,
		bucketName: cfg.Bucket,
		cdnOrigin:  cfg.CDNOrigin,
	}, nil
}

// Ping checks that the bucket exists within a short deadline.
func (m *MinioBucket) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucketName, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucketName)
	}
	return nil
}

func (m *MinioBucket) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", key, err)
	}
	return nil
}

func (m *MinioBucket) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrap("get", key, err)
	}
	defer obj.Close()

	// minio defers the request until the first read, so not-found surfaces here.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.wrap("get", key, err)
	}
	return data, nil
}

func (m *MinioBucket) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, m.wrap("stat", key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
	}, nil
}

func (m *MinioBucket) ListObjects(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		// Cancelling stops the background lister when the consumer breaks early.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		})
		for object := range objectCh {
			if object.Err != nil {
				yield(ObjectInfo{}, fmt.Errorf("minio list %s: %w", prefix, object.Err))
				return
			}
			if !yield(ObjectInfo{
				Key:          object.Key,
				Size:         object.Size,
				LastModified: object.LastModified,
				ContentType:  object.ContentType,
				ETag:         object.ETag,
			}, nil) {
				return
			}
		}
	}
}

func (m *MinioBucket) PublicURL(key string) string {
	direct := m.client.EndpointURL().String() + "/" + m.bucketName
	return publicURL(m.cdnOrigin, direct, key)
}

func (m *MinioBucket) wrap(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("minio %s %s: %w", op, key, ErrNotFound)
	}
	logger.Debug("minio request failed", logger.String("op", op), logger.Key(key), logger.ErrorField(err))
	return fmt.Errorf("minio %s %s: %w", op, key, err)
}
