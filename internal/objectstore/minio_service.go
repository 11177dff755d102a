// Package objectstore publishes evaluation artifacts (result tables, RTTM
// files, transcripts) to an S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Config is read from the storage section of the configuration or the
// MINIO_* environment variables.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
}

// ErrNotConfigured is returned by New when required settings are missing.
var ErrNotConfigured = errors.New("object storage is not configured: endpoint, access_key_id, secret_access_key and bucket are required")

// Validate reports whether the required settings are present.
func (c Config) Validate() error {
	if c.Endpoint == "" || c.AccessKeyID == "" || c.SecretAccessKey == "" || c.Bucket == "" {
		return ErrNotConfigured
	}
	return nil
}

// Publisher uploads files to one bucket.
type Publisher struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the endpoint and creates the bucket if it does not exist.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket '%s' exists: %w", cfg.Bucket, err)
	}
	if !exists {
		log.Info().Str("bucket", cfg.Bucket).Msg("Bucket does not exist, creating it")
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket '%s': %w", cfg.Bucket, err)
		}
	}
	return &Publisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Batch groups the objects of one command run under a fresh identifier.
type Batch struct {
	p  *Publisher
	ID string
}

// NewBatch starts a group of uploads.
func (p *Publisher) NewBatch() *Batch {
	return &Batch{p: p, ID: uuid.NewString()}
}

// Upload stores the file at localPath and returns its object name.
func (b *Batch) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	name := ObjectName(b.p.prefix, b.ID, localPath)
	if err := b.p.put(ctx, name, f, st.Size(), ContentType(localPath)); err != nil {
		return "", err
	}
	return name, nil
}

// UploadAll uploads each path, stopping at the first failure.
func (b *Batch) UploadAll(ctx context.Context, paths ...string) ([]string, error) {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		name, err := b.Upload(ctx, p)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (p *Publisher) put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	info, err := p.client.PutObject(ctx, p.bucket, objectName, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload to bucket %s (object %s): %w", p.bucket, objectName, err)
	}
	log.Info().Str("object", objectName).Int64("size", info.Size).Str("etag", info.ETag).Msg("Uploaded artifact")
	return nil
}

// ObjectName is prefix/batchID/basename, with an empty prefix omitted.
func ObjectName(prefix, batchID, localPath string) string {
	return path.Join(prefix, batchID, filepath.Base(localPath))
}

// ContentType guesses the MIME type from the extension.
func ContentType(localPath string) string {
	switch ext := filepath.Ext(localPath); ext {
	case ".csv":
		return "text/csv"
	case ".rttm", ".txt":
		return "text/plain; charset=utf-8"
	case ".wav":
		return "audio/wav"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
