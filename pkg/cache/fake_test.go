package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeEntry struct {
	value  string
	expiry time.Duration
}

// fakeClient is an in-memory Client. err, when set, fails every command.
type fakeClient struct {
	db int

	mu      sync.Mutex
	data    map[string]fakeEntry
	err     error
	txCalls int
	closed  bool
}

func newFakeClient(db int) *fakeClient {
	return &fakeClient{db: db, data: make(map[string]fakeEntry)}
}

func (c *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}
	e, ok := c.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(e.value, nil)
}

func (c *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStatusResult("", c.err)
	}
	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	}
	c.data[key] = fakeEntry{value: s, expiry: expiration}
	return redis.NewStatusResult("OK", nil)
}

func (c *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewIntResult(0, c.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			delete(c.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (c *fakeClient) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewBoolResult(false, c.err)
	}
	e, ok := c.data[key]
	if !ok {
		return redis.NewBoolResult(false, nil)
	}
	e.expiry = expiration
	c.data[key] = e
	return redis.NewBoolResult(true, nil)
}

// TxPipelined runs the queued commands immediately and, like go-redis,
// returns the first command error.
func (c *fakeClient) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	c.mu.Lock()
	c.txCalls++
	c.mu.Unlock()

	pipe := &fakePipe{c: c}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	for _, cmd := range pipe.cmds {
		if err := cmd.Err(); err != nil {
			return pipe.cmds, err
		}
	}
	return pipe.cmds, nil
}

func (c *fakeClient) Ping(context.Context) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	return redis.NewStatusResult("PONG", c.err)
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) entry(key string) (fakeEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	return e, ok
}

// fakePipe supports the commands the store queues in a transaction.
type fakePipe struct {
	redis.Pipeliner
	c    *fakeClient
	cmds []redis.Cmder
}

func (p *fakePipe) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := p.c.Get(ctx, key)
	p.cmds = append(p.cmds, cmd)
	return cmd
}

func (p *fakePipe) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := p.c.Expire(ctx, key, expiration)
	p.cmds = append(p.cmds, cmd)
	return cmd
}

// fakeProvider returns a provider whose clients are fakes, keyed by database.
func fakeProvider(allowed ...int) (*Provider, map[int]*fakeClient) {
	clients := make(map[int]*fakeClient)
	p, err := New(Options{Addr: "fake:6379", AllowedDatabases: allowed}, WithClientFactory(func(db int) Client {
		c := newFakeClient(db)
		clients[db] = c
		return c
	}))
	if err != nil {
		panic(err)
	}
	return p, clients
}
