package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

// ContentType is the content type of stored frames.
const ContentType = "application/x-byteflow"

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("storage: object not found")

	// ErrEmptyID is returned for blank object IDs.
	ErrEmptyID = errors.New("storage: empty id")

	// ErrTooLarge is returned when an object exceeds the size limit.
	ErrTooLarge = errors.New("storage: object too large")
)

// Client is the subset of the S3 API the store uses. *s3.Client satisfies it.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	prefix      string
	maxSize     int64
	concurrency int
	logger      *slog.Logger
}

// WithPrefix sets the key prefix. Default: the packet name followed by "/".
func WithPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.prefix = prefix
	}
}

// WithMaxObjectSize limits how many bytes Get reads. Default: 16MB.
func WithMaxObjectSize(n int64) StoreOption {
	return func(c *storeConfig) {
		c.maxSize = n
	}
}

// WithConcurrency bounds parallel requests of the batch operations.
// Default: 8.
func WithConcurrency(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Store persists packets of type T in one bucket. T must be a packet
// registered with the codec.
type Store[T any] struct {
	client Client
	bucket string
	codec  *protocol.Codec
	cfg    storeConfig
}

// NewStore creates a Store for T in bucket.
func NewStore[T any](client Client, bucket string, codec *protocol.Codec, opts ...StoreOption) *Store[T] {
	name := reflect.TypeFor[T]().Name()
	if d, ok := codec.Registry().Lookup(reflect.TypeFor[T]()); ok {
		name = d.Name()
	}
	cfg := storeConfig{
		prefix:      strings.ToLower(name) + "/",
		maxSize:     16 << 20,
		concurrency: 8,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.With("component", "storage", "bucket", bucket, "prefix", cfg.prefix)
	return &Store[T]{client: client, bucket: bucket, codec: codec, cfg: cfg}
}

// Prefix returns the key prefix.
func (s *Store[T]) Prefix() string {
	return s.cfg.prefix
}

// Key returns the object key for id.
func (s *Store[T]) Key(id string) string {
	return s.cfg.prefix + id
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	return nil
}

// Put stores v under id, replacing any existing object.
func (s *Store[T]) Put(ctx context.Context, id string, v *T) error {
	if err := checkID(id); err != nil {
		return err
	}
	frame, err := s.codec.Pack(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(id)),
		Body:        bytes.NewReader(frame),
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", id, err)
	}
	return nil
}

// PutMany stores every value in values concurrently.
func (s *Store[T]) PutMany(ctx context.Context, values map[string]*T) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.concurrency)
	for id, v := range values {
		g.Go(func() error { return s.Put(gctx, id, v) })
	}
	return g.Wait()
}

// Get returns the value stored under id, or ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("storage: get %s: %w", id, err)
	}
	defer out.Body.Close()

	frame, err := io.ReadAll(io.LimitReader(out.Body, s.cfg.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", id, err)
	}
	if int64(len(frame)) > s.cfg.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, id)
	}
	return protocol.UnpackAs[T](s.codec, frame)
}

// Exists reports whether an object is stored under id.
func (s *Store[T]) Exists(ctx context.Context, id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(id)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("storage: head %s: %w", id, err)
	}
	return true, nil
}

// Delete removes the object under id. It reports whether it existed.
func (s *Store[T]) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(id)),
	})
	if err != nil {
		return false, fmt.Errorf("storage: delete %s: %w", id, err)
	}
	return true, nil
}

// IDs lists the IDs of all stored objects in key order.
func (s *Store[T]) IDs(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.cfg.prefix),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				ids = append(ids, strings.TrimPrefix(*obj.Key, s.cfg.prefix))
			}
		}
	}
	return ids, nil
}

// Find returns every stored value for which match returns true, keyed by ID.
// A nil match returns all values.
func (s *Store[T]) Find(ctx context.Context, match func(id string, v *T) bool) (map[string]*T, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	found := make(map[string]*T)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			v, err := s.Get(gctx, id)
			if errors.Is(err, ErrNotFound) {
				// Deleted since listing.
				return nil
			}
			if err != nil {
				return err
			}
			if match == nil || match(id, v) {
				mu.Lock()
				found[id] = v
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// DeleteWhere deletes every stored value for which match returns true and
// returns how many were deleted.
func (s *Store[T]) DeleteWhere(ctx context.Context, match func(id string, v *T) bool) (int, error) {
	found, err := s.Find(ctx, match)
	if err != nil {
		return 0, err
	}
	n := 0
	for id := range found {
		ok, err := s.Delete(ctx, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	s.cfg.logger.Debug("objects deleted", "count", n)
	return n, nil
}

// Update loads the value under id, applies fn and stores the result. It
// reports false without calling fn when the object does not exist. Updates
// are not atomic with respect to other writers.
func (s *Store[T]) Update(ctx context.Context, id string, fn func(v *T) error) (bool, error) {
	v, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := fn(v); err != nil {
		return false, err
	}
	return true, s.Put(ctx, id, v)
}

// CheckHealth verifies that the bucket is reachable.
func (s *Store[T]) CheckHealth(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("storage: health check: %w", err)
	}
	return nil
}
