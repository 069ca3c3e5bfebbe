package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

// Registry tracks the connections a server has accepted.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*protoconn.Conn
	max   int

	totalAccepted atomic.Uint64
	totalClosed   atomic.Uint64
	peak          int
}

// NewRegistry creates a registry holding at most max connections.
// 0 means no limit.
func NewRegistry(max int) *Registry {
	return &Registry{
		conns: make(map[string]*protoconn.Conn),
		max:   max,
	}
}

// Reserve reports whether another connection would fit. It does not hold a
// slot; Add re-checks the limit.
func (r *Registry) Reserve() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.max > 0 && len(r.conns) >= r.max {
		return ErrMaxConnectionsReached
	}
	return nil
}

// Add registers c.
func (r *Registry) Add(c *protoconn.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.conns) >= r.max {
		return ErrMaxConnectionsReached
	}
	if _, ok := r.conns[c.ID()]; ok {
		return &ConnError{ConnID: c.ID(), Op: "register", Err: ErrConnectionExists}
	}
	r.conns[c.ID()] = c
	r.totalAccepted.Add(1)
	if len(r.conns) > r.peak {
		r.peak = len(r.conns)
	}
	return nil
}

// Remove unregisters the connection with id. It reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		r.totalClosed.Add(1)
	}
	return ok
}

// Get returns the connection with id, or nil.
func (r *Registry) Get(id string) *protoconn.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ForEach iterates over all connections until fn returns false.
// The callback should not perform long-running operations as it holds the read lock.
func (r *Registry) ForEach(fn func(*protoconn.Conn) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if !fn(c) {
			break
		}
	}
}

// List returns the registered connections ordered by ID.
func (r *Registry) List() []*protoconn.Conn {
	r.mu.RLock()
	out := make([]*protoconn.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// CloseAll closes every registered connection concurrently with status and
// reason, then waits until each has finished or ctx is done.
func (r *Registry) CloseAll(ctx context.Context, status connection.CloseStatus, reason string) error {
	conns := r.List()
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		g.Go(func() error {
			c.Close(gctx, status, reason)
			select {
			case <-c.Connection().Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// RegistryStats contains aggregated registry statistics.
type RegistryStats struct {
	Active        int    `json:"active"`
	TotalAccepted uint64 `json:"total_accepted"`
	TotalClosed   uint64 `json:"total_closed"`
	Peak          int    `json:"peak"`
}

// Stats returns current statistics.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	active, peak := len(r.conns), r.peak
	r.mu.RUnlock()
	return RegistryStats{
		Active:        active,
		TotalAccepted: r.totalAccepted.Load(),
		TotalClosed:   r.totalClosed.Load(),
		Peak:          peak,
	}
}

// ConnInfo is the JSON view of one connection.
type ConnInfo struct {
	ID            string    `json:"id"`
	Tag           string    `json:"tag,omitempty"`
	Remote        string    `json:"remote"`
	User          string    `json:"user,omitempty"`
	State         string    `json:"state"`
	Alive         bool      `json:"alive"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`
	LastPacket    time.Time `json:"last_packet,omitzero"`
}

func connInfo(c *protoconn.Conn) ConnInfo {
	conn := c.Connection()
	info := ConnInfo{
		ID:            c.ID(),
		Tag:           conn.Tag(),
		Remote:        conn.Endpoint(),
		State:         conn.State().String(),
		Alive:         c.IsAlive(),
		LastHeartbeat: c.LastHeartbeatTime(),
		LastPacket:    c.LastPacketTime(),
	}
	if id, ok := IdentityOf(c); ok {
		info.User = id.Username
	}
	return info
}
