// Package s3sink stores materialized images in an S3-compatible bucket.
package s3sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the connection settings for an S3 or MinIO endpoint.
type Config struct {
	Endpoint  string `yaml:"endpoint"` // host:port without scheme
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"` // optional key prefix for every object
	UseSSL    bool   `yaml:"use_ssl"`
}

// Storage implements imagecurate.Sink and imagecurate.Resetter.
type Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

var (
	_ imagecurate.Sink     = (*Storage)(nil)
	_ imagecurate.Resetter = (*Storage)(nil)
)

// New connects to the endpoint and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 endpoint and bucket are required", imagecurate.ErrConfig)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Storage{client: client, bucket: cfg.Bucket, prefix: cleanPrefix(cfg.Prefix)}, nil
}

// Put uploads r under key. size may be -1 when unknown.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64) (imagecurate.Location, error) {
	if s == nil || s.client == nil {
		return imagecurate.Location{}, errors.New("s3sink: storage uninitialized")
	}
	objectKey, err := s.objectKey(key)
	if err != nil {
		return imagecurate.Location{}, err
	}

	info, err := s.client.PutObject(ctx, s.bucket, objectKey, r, size, minio.PutObjectOptions{
		ContentType: contentType(objectKey),
	})
	if err != nil {
		return imagecurate.Location{}, fmt.Errorf("put object: %w", err)
	}
	return imagecurate.Location{
		Key: objectKey,
		URL: fmt.Sprintf("s3://%s/%s", s.bucket, info.Key),
	}, nil
}

// Reset deletes every object under the given partitions.
func (s *Storage) Reset(ctx context.Context, prefixes ...string) error {
	if s == nil || s.client == nil {
		return errors.New("s3sink: storage uninitialized")
	}
	for _, p := range prefixes {
		objectPrefix, err := s.objectKey(p)
		if err != nil {
			return err
		}
		objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    objectPrefix + "/",
			Recursive: true,
		})
		for obj := range objects {
			if obj.Err != nil {
				return fmt.Errorf("list %s: %w", objectPrefix, obj.Err)
			}
			if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				return fmt.Errorf("remove %s: %w", obj.Key, err)
			}
		}
	}
	return nil
}

// objectKey joins the configured prefix and a sanitized key.
func (s *Storage) objectKey(key string) (string, error) {
	key = strings.TrimLeft(strings.ReplaceAll(strings.TrimSpace(key), "\\", "/"), "/")
	cleaned := path.Clean(key)
	if key == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("s3sink: invalid key %q", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

func cleanPrefix(p string) string {
	p = strings.Trim(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"), "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
