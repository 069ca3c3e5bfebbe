package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/byteflow-dev/byteflow/pkg/async"
	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/middleware"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

// SweepTask is the scheduler task name of the liveness sweep.
const SweepTask = "__sweep"

// Server accepts ByteFlow connections over WebSocket and tracks them.
type Server struct {
	config *ServerConfig
	codec  *protocol.Codec

	upgrader       websocket.Upgrader
	router         chi.Router
	registry       *Registry
	limiter        *ipLimiter
	auth           *authenticator
	trustedProxies *proxySet
	sched          *async.Scheduler

	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer
	hooks    []protoconn.Hooks
	chain    []protoconn.Middleware
	setup    func(*protoconn.Conn)

	// ctx is the parent of every served connection; cancel closes them
	// with CloseGoingAway.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	wg         sync.WaitGroup
	httpServer *http.Server

	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Connections log through it too.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.With("component", "server")
		}
	}
}

// WithMetrics records connection and packet metrics in m and serves
// gatherer on /metrics. A nil gatherer uses prometheus.DefaultGatherer.
func WithMetrics(m *middleware.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithHooks adds connection hooks to every accepted connection.
func WithHooks(h protoconn.Hooks) Option {
	return func(s *Server) {
		s.hooks = append(s.hooks, h)
	}
}

// WithPacketMiddleware adds packet middleware to every accepted connection.
func WithPacketMiddleware(mw ...protoconn.Middleware) Option {
	return func(s *Server) {
		s.chain = append(s.chain, mw...)
	}
}

// WithTracing traces the packets of every accepted connection.
func WithTracing(opts ...middleware.OTelOption) Option {
	return WithPacketMiddleware(middleware.OpenTelemetry(opts...))
}

// WithConnSetup sets a function called for each accepted connection before
// it starts serving. Register packet handlers there.
func WithConnSetup(fn func(*protoconn.Conn)) Option {
	return func(s *Server) {
		s.setup = fn
	}
}

// New creates a Server that packs and unpacks with codec. A nil codec uses
// protocol.Default(). Unset config fields take their defaults.
func New(codec *protocol.Codec, config *ServerConfig, opts ...Option) *Server {
	config = config.withDefaults()
	if codec == nil {
		codec = protocol.Default()
	}

	s := &Server{
		config:   config,
		codec:    codec,
		registry: NewRegistry(config.MaxConnections),
		limiter:  newIPLimiter(config.RateLimit, config.RateBurst),
		auth:     newAuthenticator(config.JWTSecret),
		logger:   slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if err := config.ValidateConfig(); err != nil {
		s.logger.Error("config validation failed", "error", err)
	}
	if s.auth == nil {
		s.logger.Warn("JWTSecret is empty, connections are not authenticated")
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
		Subprotocols:    config.Subprotocols,
	}
	s.trustedProxies = newProxySet(config.TrustedProxies, s.logger)
	s.sched = async.NewScheduler(s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.router = s.routes()

	if config.HeartbeatInterval > 0 && config.SweepInterval > 0 {
		if err := s.sched.Schedule(SweepTask, config.SweepInterval, s.sweep); err != nil {
			s.logger.Error("liveness sweep not scheduled", "error", err)
		}
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/connections", s.handleConnections)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get(s.config.Path, s.HandleWebSocket)
	return r
}

// Handler returns the HTTP handler serving the upgrade route and the
// /healthz, /connections and /metrics endpoints.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the chi router so callers can mount extra routes.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleWebSocket admits, upgrades and serves one connection. It returns when
// the connection ends.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := s.clientIP(r)

	if !s.limiter.Allow(ip) {
		s.reject(w, http.StatusTooManyRequests, "rate_limit", ip, ErrRateLimited)
		return
	}

	var ident *Identity
	if s.auth != nil {
		id, err := s.auth.Verify(bearerToken(r))
		if err != nil {
			s.reject(w, http.StatusUnauthorized, "unauthorized", ip, err)
			return
		}
		ident = id
	}

	if err := s.registry.Reserve(); err != nil {
		s.reject(w, http.StatusServiceUnavailable, "capacity", ip, err)
		return
	}

	if !s.track() {
		s.reject(w, http.StatusServiceUnavailable, "shutdown", ip, ErrServerClosed)
		return
	}
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.logger.Warn("websocket upgrade failed", "remote", ip, "error", err)
		s.recordRejected("handshake")
		return
	}
	s.serve(ws, ip, ident)
}

func (s *Server) serve(ws *websocket.Conn, ip string, ident *Identity) {
	t := connection.NewWebSocketTransport(ws, connection.WebSocketConfig{
		WriteTimeout: s.config.WriteTimeout,
		ReadLimit:    s.config.MaxMessageSize,
	})

	c, err := protoconn.Accept(t, s.codec, s.connOptions(ip, ident)...)
	if err != nil {
		s.logger.Error("accept failed", "remote", ip, "error", err)
		_ = t.Release()
		return
	}
	if s.metrics != nil {
		c.Use(s.metrics.Middleware())
	}
	c.Use(s.chain...)
	if s.setup != nil {
		s.setup(c)
	}

	if err := s.registry.Add(c); err != nil {
		s.recordRejected("capacity")
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = t.Close(ctx, connection.ClosePolicyViolation, "server full")
		cancel()
		_ = c.Release()
		return
	}
	defer func() {
		s.registry.Remove(c.ID())
		_ = c.Release()
	}()

	s.logger.Info("connection accepted", "conn_id", c.ID(), "remote", ip, "tag", c.Connection().Tag())
	if err := c.Serve(s.ctx); err != nil {
		s.logger.Debug("connection ended", "conn_id", c.ID(), "error", err)
	}
}

func (s *Server) connOptions(ip string, ident *Identity) []protoconn.Option {
	tag := ip
	connOpts := []connection.Option{}
	if ident != nil {
		tag = ident.Username
		connOpts = append(connOpts, connection.WithUserData(ident))
	}
	connOpts = append(connOpts, connection.WithTag(tag))

	opts := []protoconn.Option{
		protoconn.WithHeartbeatInterval(s.config.HeartbeatInterval),
		protoconn.WithLogger(s.logger),
		protoconn.WithConnectionOptions(connOpts...),
	}
	if s.metrics != nil {
		opts = append(opts, protoconn.WithHooks(s.metrics.Hooks()))
	}
	for _, h := range s.hooks {
		opts = append(opts, protoconn.WithHooks(h))
	}
	return opts
}

// track registers an in-flight upgrade unless the server is shutting down.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) reject(w http.ResponseWriter, status int, reason, ip string, err error) {
	s.logger.Warn("upgrade rejected", "remote", ip, "reason", reason, "error", err)
	s.recordRejected(reason)
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejected(reason)
	}
}

// sweep closes open connections whose peer stopped answering heartbeats and
// forgets idle rate limiter entries.
func (s *Server) sweep(time.Duration) {
	var dead []*protoconn.Conn
	s.registry.ForEach(func(c *protoconn.Conn) bool {
		// A zero heartbeat time means the opened event is still queued.
		if c.Connection().State() == connection.StateOpen && !c.LastHeartbeatTime().IsZero() && !c.IsAlive() {
			dead = append(dead, c)
		}
		return true
	})
	for _, c := range dead {
		s.logger.Info("closing dead connection", "conn_id", c.ID(), "last_heartbeat", c.LastHeartbeatTime())
		c.Close(context.Background(), connection.CloseGoingAway, "heartbeat timeout")
	}
	if n := s.limiter.Prune(10 * s.config.SweepInterval); n > 0 {
		s.logger.Debug("rate limiter pruned", "clients", n)
	}
}

// Broadcast packs packet once and sends it to every open connection. It
// returns the number of connections the frame was written to; write
// failures are joined into the error.
func (s *Server) Broadcast(ctx context.Context, packet any) (int, error) {
	frame, err := s.codec.Pack(packet)
	if err != nil {
		return 0, err
	}

	var errs []error
	sent := 0
	for _, c := range s.registry.List() {
		if c.Connection().State() != connection.StateOpen {
			continue
		}
		if err := c.Connection().SendBinary(ctx, frame); err != nil {
			errs = append(errs, &ConnError{ConnID: c.ID(), Op: "broadcast", Err: err})
			continue
		}
		sent++
	}
	if s.metrics != nil {
		s.metrics.RecordBroadcast(sent)
	}
	return sent, errors.Join(errs...)
}

type healthResponse struct {
	Status      string        `json:"status"`
	Connections RegistryStats `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	s.mu.Lock()
	if s.closed {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}
	s.mu.Unlock()
	writeJSON(w, code, healthResponse{Status: status, Connections: s.registry.Stats()})
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.registry.List()
	out := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, connInfo(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.ValidateConfig(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String(), "path", s.config.Path)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections, closes every open connection with
// CloseGoingAway and waits for them to finish, bounded by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()

	s.sched.StopAll()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.registry.CloseAll(ctx, connection.CloseGoingAway, "server shutting down"); err != nil {
		errs = append(errs, err)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// Connections returns the connection registry.
func (s *Server) Connections() *Registry {
	return s.registry
}

// Codec returns the codec connections use.
func (s *Server) Codec() *protocol.Codec {
	return s.codec
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
