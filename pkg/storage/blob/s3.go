// Package blob stores batch dependency artifacts. The dispatcher uploads a
// batch's artifacts once; every worker that runs one of the batch's jobs
// fetches them by key when materializing its working area.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"crucible/pkg/resilience"
	"crucible/pkg/storage"
)

// S3BlobStore keeps dependency blobs in S3-compatible storage, with an
// optional local cache so a worker running many jobs of one batch fetches
// each blob over the network once. Remote calls go through a circuit
// breaker: a wedged object store fails jobs fast instead of hanging every
// working-area setup behind it.
type S3BlobStore struct {
	client     *s3.Client
	bucket     string
	prefix     string
	localCache string
	breaker    *resilience.CircuitBreaker
}

// S3BlobStoreConfig holds S3 configuration.
type S3BlobStoreConfig struct {
	Bucket          string
	Prefix          string // e.g. "batches/"
	Region          string
	Endpoint        string // for MinIO/local S3
	AccessKeyID     string
	SecretAccessKey string
	LocalCacheDir   string
}

// NewS3BlobStore creates an S3-backed blob store.
func NewS3BlobStore(ctx context.Context, cfg S3BlobStoreConfig) (*S3BlobStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.LocalCacheDir != "" {
		if err := os.MkdirAll(cfg.LocalCacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create blob cache dir: %w", err)
		}
	}

	return &S3BlobStore{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		localCache: cfg.LocalCacheDir,
		breaker:    resilience.NewCircuitBreaker("s3-blob", resilience.DefaultCircuitBreakerConfig()),
	}, nil
}

// Store uploads a blob under the given key.
func (s *S3BlobStore) Store(ctx context.Context, key string, content []byte) error {
	fullKey := s.prefix + key
	err := s.breaker.Execute(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(fullKey),
			Body:        bytes.NewReader(content),
			ContentType: aws.String("application/octet-stream"),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %q: %w", key, err)
	}
	return nil
}

// Retrieve fetches a blob, preferring the local cache.
func (s *S3BlobStore) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if s.localCache != "" {
		if data, err := os.ReadFile(s.cachePath(key)); err == nil {
			return data, nil
		}
	}

	fullKey := s.prefix + key
	var data []byte
	err := s.breaker.Execute(ctx, func() error {
		output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return err
		}
		defer output.Body.Close()
		data, err = io.ReadAll(output.Body)
		return err
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("blob %q: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blob %q: %w", key, err)
	}

	if s.localCache != "" {
		path := s.cachePath(key)
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		_ = os.WriteFile(path, data, 0o644)
	}
	return data, nil
}

func (s *S3BlobStore) cachePath(key string) string {
	return filepath.Join(s.localCache, filepath.FromSlash(strings.ReplaceAll(key, "..", "_")))
}

// LocalBlobStore keeps blobs on the local filesystem, for development and
// single-node runs.
type LocalBlobStore struct {
	basePath string
}

// NewLocalBlobStore creates a filesystem-backed blob store.
func NewLocalBlobStore(basePath string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalBlobStore{basePath: basePath}, nil
}

func (l *LocalBlobStore) Store(ctx context.Context, key string, content []byte) error {
	path := filepath.Join(l.basePath, filepath.FromSlash(key))
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blob dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (l *LocalBlobStore) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if strings.Contains(key, "..") {
		return nil, fmt.Errorf("invalid blob key %q", key)
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %q: %w", key, storage.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}
