package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lazythumb/internal/logging"
)

const (
	minioBackend = "minio"
	objectPrefix = "thumbnails/"
)

// MinioConfig holds the parameters needed to reach an S3-compatible bucket.
type MinioConfig struct {
	// Endpoint is the server address, e.g. "localhost:9000".
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	// Quota bounds the summed object sizes. 0 means unlimited.
	Quota int64
}

// MinioStore keeps one JSON-encoded Result per object. Objects are named by
// the SHA-256 of the URL so arbitrary URLs are valid keys.
type MinioStore struct {
	client *minio.Client
	bucket string
	quota  int64

	mu    sync.Mutex
	sizes map[string]int64
	used  int64
}

// NewMinioStore connects, creates the bucket when missing and samples the
// current usage for quota accounting.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	s := &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		quota:  cfg.Quota,
		sizes:  make(map[string]int64),
	}

	if err := s.createBucket(ctx); err != nil {
		return nil, err
	}
	if err := s.sampleUsage(ctx); err != nil {
		return nil, err
	}

	logging.Info("Cache bucket %s ready on %s (%d entries, %d bytes)", cfg.Bucket, cfg.Endpoint, len(s.sizes), s.used)
	return s, nil
}

func (s *MinioStore) createBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence for bucket '%s': %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket '%s': %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) sampleUsage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objectPrefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list bucket '%s': %w", s.bucket, obj.Err)
		}
		s.sizes[obj.Key] = obj.Size
		s.used += obj.Size
	}
	return nil
}

// ObjectName returns the object key used for url.
func ObjectName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return objectPrefix + hex.EncodeToString(sum[:]) + ".json"
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

// Get implements Store.
func (s *MinioStore) Get(ctx context.Context, url string) (r Result, err error) {
	start := time.Now()
	defer func() { observe(minioBackend, "get", start, err) }()

	obj, err := s.client.GetObject(ctx, s.bucket, ObjectName(url), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("cache get %q: %w", url, err)
	}
	defer func() {
		if closeErr := obj.Close(); closeErr != nil {
			logging.Debug("cache get: closing object: %v", closeErr)
		}
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("cache get %q: %w", url, err)
	}

	if err = json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("cache get %q: decode: %w", url, err)
	}
	// The stored URL must match; a hash collision is treated as a miss.
	if r.SourceURL != url {
		return Result{}, ErrNotFound
	}
	return r, nil
}

// Put implements Store.
func (s *MinioStore) Put(ctx context.Context, url, payload string) (err error) {
	start := time.Now()
	defer func() { observe(minioBackend, "put", start, err) }()

	body, err := json.Marshal(Result{SourceURL: url, Payload: payload, GeneratedAt: now().UTC()})
	if err != nil {
		return fmt.Errorf("cache put %q: encode: %w", url, err)
	}

	name := ObjectName(url)
	newSize := int64(len(body))

	s.mu.Lock()
	if !fits(s.quota, s.used, s.sizes[name], newSize) {
		s.mu.Unlock()
		err = ErrQuotaExceeded
		return err
	}
	s.mu.Unlock()

	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(body), newSize, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("cache put %q: %w", url, err)
	}

	s.mu.Lock()
	s.used += newSize - s.sizes[name]
	s.sizes[name] = newSize
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MinioStore) Delete(ctx context.Context, url string) (err error) {
	start := time.Now()
	defer func() { observe(minioBackend, "delete", start, err) }()

	name := ObjectName(url)
	if err = s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{ForceDelete: true}); err != nil && !isNotFound(err) {
		return fmt.Errorf("cache delete %q: %w", url, err)
	}
	err = nil

	s.mu.Lock()
	s.used -= s.sizes[name]
	delete(s.sizes, name)
	s.mu.Unlock()
	return nil
}

// Stats implements Store. Counts come from the store's own accounting, which
// is exact for writes made through this process.
func (s *MinioStore) Stats(_ context.Context) (Stats, error) {
	start := time.Now()
	defer observe(minioBackend, "stats", start, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Entries: int64(len(s.sizes)), TotalBytes: s.used, QuotaBytes: s.quota}, nil
}

// Close implements Store.
func (s *MinioStore) Close() error {
	return nil
}

// String identifies the bucket for logs.
func (s *MinioStore) String() string {
	return strings.Join([]string{minioBackend, s.client.EndpointURL().Host, s.bucket}, "/")
}
