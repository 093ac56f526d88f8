// Package objstore provides a MinIO/S3-backed cache.Store so several chorus
// instances can share one download cache.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrWong99/chorus/internal/cache"
)

// Config holds the connection settings for a bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool

	// Prefix is prepended to every object key (e.g. "songs/").
	Prefix string

	// PublicBaseURL, when set, is used to build references instead of
	// presigned URLs. Use it for buckets with anonymous read access.
	PublicBaseURL string

	// PresignExpiry bounds presigned references. Default: 6h.
	PresignExpiry time.Duration
}

// Store implements cache.Store on top of a MinIO bucket.
type Store struct {
	client *minio.Client
	cfg    Config
}

var _ cache.Store = (*Store)(nil)

// New connects to the bucket described by cfg, creating the bucket if it does
// not exist yet.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("objstore: endpoint and bucket are required")
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 6 * time.Hour
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: new client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("objstore: check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("objstore: create bucket %q: %w", cfg.Bucket, err)
		}
		slog.Info("objstore: created bucket", "bucket", cfg.Bucket)
	}
	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) object(key string) string {
	return s.cfg.Prefix + key
}

// Exists reports whether the object for key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, s.object(key), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("objstore: stat %s: %w", key, err)
}

// Commit uploads tmpPath as the object for key.
func (s *Store) Commit(ctx context.Context, key, tmpPath string) error {
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	if _, err := s.client.FPutObject(ctx, s.cfg.Bucket, s.object(key), tmpPath, minio.PutObjectOptions{
		ContentType: ct,
	}); err != nil {
		return fmt.Errorf("objstore: upload %s: %w", key, err)
	}
	return nil
}

// Ref returns a URL the transport can stream from. Presigning is a local
// computation as long as Region is configured.
func (s *Store) Ref(key string) (string, error) {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + url.PathEscape(s.cfg.Bucket) + "/" + s.object(key), nil
	}
	u, err := s.client.PresignedGetObject(context.Background(), s.cfg.Bucket, s.object(key), s.cfg.PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("objstore: presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Ping checks that the bucket is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.cfg.Bucket); err != nil {
		return fmt.Errorf("objstore: ping: %w", err)
	}
	return nil
}
