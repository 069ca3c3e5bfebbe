package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthCheckKey is the key CheckHealth writes and reads back.
const HealthCheckKey = "cache_provider_healthCheck"

var (
	// ErrNoDatabases is returned by New when no database is allowed.
	ErrNoDatabases = errors.New("cache: no allowed databases")

	// ErrDatabaseNotAllowed is returned when a store uses a database that is
	// not in Options.AllowedDatabases.
	ErrDatabaseNotAllowed = errors.New("cache: database not allowed")

	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("cache: key not found")

	// ErrEmptyKey is returned for blank keys.
	ErrEmptyKey = errors.New("cache: empty key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache: provider closed")
)

// Client is the subset of the go-redis client API the cache uses.
// *redis.Client satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Options configures a Provider.
type Options struct {
	// Addr is the Redis address (host:port).
	Addr string

	// Username and Password authenticate the connection. Both may be empty.
	Username string
	Password string

	// AllowedDatabases lists the database indexes stores may use. The first
	// one is used for health checks. Required.
	AllowedDatabases []int

	// DialTimeout, ReadTimeout and WriteTimeout bound network operations.
	// Defaults: 5s, 3s, 3s.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Option configures a Provider beyond Options.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.With("component", "cache")
		}
	}
}

// WithClientFactory replaces how per-database clients are created.
func WithClientFactory(fn func(db int) Client) Option {
	return func(p *Provider) {
		p.newClient = fn
	}
}

// Provider hands out Redis clients for the allowed databases.
type Provider struct {
	opts      Options
	newClient func(db int) Client
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[int]Client
	closed  bool
}

// New creates a Provider. Clients are created lazily on first use.
func New(opts Options, options ...Option) (*Provider, error) {
	if len(opts.AllowedDatabases) == 0 {
		return nil, ErrNoDatabases
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	p := &Provider{
		opts:    opts,
		clients: make(map[int]Client),
		logger:  slog.Default().With("component", "cache"),
	}
	p.newClient = p.redisClient
	for _, o := range options {
		o(p)
	}
	return p, nil
}

func (p *Provider) redisClient(db int) Client {
	return redis.NewClient(&redis.Options{
		Addr:         p.opts.Addr,
		Username:     p.opts.Username,
		Password:     p.opts.Password,
		DB:           db,
		DialTimeout:  p.opts.DialTimeout,
		ReadTimeout:  p.opts.ReadTimeout,
		WriteTimeout: p.opts.WriteTimeout,
	})
}

// AllowedDatabases returns the configured database indexes.
func (p *Provider) AllowedDatabases() []int {
	return slices.Clone(p.opts.AllowedDatabases)
}

// Database returns the client for database db.
func (p *Provider) Database(db int) (Client, error) {
	if !slices.Contains(p.opts.AllowedDatabases, db) {
		return nil, fmt.Errorf("%w: %d (allowed %v)", ErrDatabaseNotAllowed, db, p.opts.AllowedDatabases)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	c, ok := p.clients[db]
	if !ok {
		c = p.newClient(db)
		p.clients[db] = c
		p.logger.Debug("redis client created", "addr", p.opts.Addr, "db", db)
	}
	return c, nil
}

// CheckHealth writes HealthCheckKey with a 30 second expiry to the first
// allowed database and reads it back.
func (p *Provider) CheckHealth(ctx context.Context) error {
	c, err := p.Database(p.opts.AllowedDatabases[0])
	if err != nil {
		return err
	}
	value := "Health Check at " + time.Now().Format(time.RFC3339)
	if err := c.Set(ctx, HealthCheckKey, value, 30*time.Second).Err(); err != nil {
		return fmt.Errorf("cache: health check: %w", err)
	}
	got, err := c.Get(ctx, HealthCheckKey).Result()
	if err != nil {
		return fmt.Errorf("cache: health check: %w", err)
	}
	if got != value {
		return fmt.Errorf("cache: health check: read back %q, want %q", got, value)
	}
	return nil
}

// Ping checks connectivity to every allowed database.
func (p *Provider) Ping(ctx context.Context) error {
	var errs []error
	for _, db := range p.opts.AllowedDatabases {
		c, err := p.Database(db)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("db %d: %w", db, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close closes every client. Stores fail with ErrClosed afterwards.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for db, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db %d: %w", db, err))
		}
	}
	p.clients = nil
	return errors.Join(errs...)
}
