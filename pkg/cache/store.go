package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

// DefaultKeySeparator joins the key prefix and the key.
const DefaultKeySeparator = ":"

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	database  int
	prefix    string
	separator string
}

// WithDatabase selects the database index. It must be allowed by the
// provider. Default: the provider's first allowed database.
func WithDatabase(db int) StoreOption {
	return func(c *storeConfig) {
		c.database = db
	}
}

// WithKeyPrefix sets the key prefix. Without a prefix keys are used as given.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.prefix = prefix
	}
}

// WithKeySeparator sets the separator between prefix and key.
// Default: ":".
func WithKeySeparator(sep string) StoreOption {
	return func(c *storeConfig) {
		c.separator = sep
	}
}

// Store caches packets of type T. T must be a packet registered with the
// codec.
type Store[T any] struct {
	p     *Provider
	codec *protocol.Codec
	cfg   storeConfig
}

// NewStore creates a Store for T backed by p.
func NewStore[T any](p *Provider, codec *protocol.Codec, opts ...StoreOption) *Store[T] {
	cfg := storeConfig{
		database:  p.opts.AllowedDatabases[0],
		separator: DefaultKeySeparator,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store[T]{p: p, codec: codec, cfg: cfg}
}

// Key returns the Redis key used for key.
func (s *Store[T]) Key(key string) string {
	if strings.TrimSpace(s.cfg.prefix) == "" {
		return key
	}
	return s.cfg.prefix + s.cfg.separator + key
}

func (s *Store[T]) client(key string) (Client, string, error) {
	if strings.TrimSpace(key) == "" {
		return nil, "", ErrEmptyKey
	}
	c, err := s.p.Database(s.cfg.database)
	if err != nil {
		return nil, "", err
	}
	return c, s.Key(key), nil
}

// Set stores v under key with the given expiry.
func (s *Store[T]) Set(ctx context.Context, key string, v *T, expiry time.Duration) error {
	c, k, err := s.client(key)
	if err != nil {
		return err
	}
	frame, err := s.codec.Pack(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, k, frame, expiry).Err()
}

// Get returns the value under key, or ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, key string) (*T, error) {
	c, k, err := s.client(key)
	if err != nil {
		return nil, err
	}
	frame, err := c.Get(ctx, k).Bytes()
	if err != nil {
		return nil, s.notFound(err, key)
	}
	return protocol.UnpackAs[T](s.codec, frame)
}

// GetAndTouch returns the value under key and resets its expiry in the same
// transaction.
func (s *Store[T]) GetAndTouch(ctx context.Context, key string, expiry time.Duration) (*T, error) {
	c, k, err := s.client(key)
	if err != nil {
		return nil, err
	}

	var get *redis.StringCmd
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, k)
		pipe.Expire(ctx, k, expiry)
		return nil
	})
	if err != nil {
		return nil, s.notFound(err, key)
	}
	frame, err := get.Bytes()
	if err != nil {
		return nil, s.notFound(err, key)
	}
	return protocol.UnpackAs[T](s.codec, frame)
}

// Delete removes key. It reports whether the key existed.
func (s *Store[T]) Delete(ctx context.Context, key string) (bool, error) {
	c, k, err := s.client(key)
	if err != nil {
		return false, err
	}
	n, err := c.Del(ctx, k).Result()
	return n > 0, err
}

// ExtendExpiry sets a new expiry on key. It reports whether the key existed.
func (s *Store[T]) ExtendExpiry(ctx context.Context, key string, expiry time.Duration) (bool, error) {
	c, k, err := s.client(key)
	if err != nil {
		return false, err
	}
	return c.Expire(ctx, k, expiry).Result()
}

func (s *Store[T]) notFound(err error, key string) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
