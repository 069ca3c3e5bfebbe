package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/byteflow-dev/byteflow/internal/config"
	"github.com/byteflow-dev/byteflow/internal/demo"
	"github.com/byteflow-dev/byteflow/internal/errors"
	"github.com/byteflow-dev/byteflow/pkg/async"
	"github.com/byteflow-dev/byteflow/pkg/cache"
	"github.com/byteflow-dev/byteflow/pkg/middleware"
	"github.com/byteflow-dev/byteflow/pkg/server"
)

type serveOptions struct {
	addr           string
	heartbeat      time.Duration
	maxConnections int
	announce       time.Duration
	recentTTL      time.Duration
	tracing        bool
}

func serveCmd(g *globalFlags) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server",
		Long: `Run a ByteFlow WebSocket server that answers the demo packets.

LoginRequest is answered with a LoginResponse. SimpleEntity and Entity
packets are echoed back; when Redis is configured the last SimpleEntity
of each account is cached, and when an S3 bucket is configured every
Entity is stored.

Besides the WebSocket route the server exposes /healthz, /connections
and /metrics.

Examples:
  byteflow serve
  byteflow serve --addr=:9000 --heartbeat=5s
  BYTEFLOW_JWT_SECRET=s3cret byteflow serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = opts.addr
			}
			if cmd.Flags().Changed("heartbeat") {
				cfg.Server.HeartbeatInterval = config.Duration(opts.heartbeat)
			}
			if cmd.Flags().Changed("max-connections") {
				cfg.Server.MaxConnections = opts.maxConnections
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, opts, nil, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Address to listen on (default from byteflow.json)")
	cmd.Flags().DurationVar(&opts.heartbeat, "heartbeat", 0, "Heartbeat interval, 0 disables (default from byteflow.json)")
	cmd.Flags().IntVar(&opts.maxConnections, "max-connections", 0, "Maximum concurrent connections, 0 for no limit")
	cmd.Flags().DurationVar(&opts.announce, "announce", 0, "Broadcast a SimpleEntity to every connection at this interval")
	cmd.Flags().DurationVar(&opts.recentTTL, "recent-ttl", time.Hour, "Expiry of cached SimpleEntity values")
	cmd.Flags().BoolVar(&opts.tracing, "tracing", false, "Wrap packet dispatch in OpenTelemetry spans")

	return cmd
}

// runServe serves until ctx is cancelled. A nil ln listens on
// cfg.Server.Addr.
func runServe(ctx context.Context, cfg *config.Config, opts serveOptions, ln net.Listener, out io.Writer) error {
	logger := slog.Default()

	codec, err := demo.NewCodec()
	if err != nil {
		return err
	}

	a := &app{logger: logger, recentTTL: opts.recentTTL}

	provider, err := openCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	if provider != nil {
		defer provider.Close()
		a.recent = cache.NewStore[demo.SimpleEntity](provider, codec, cache.WithKeyPrefix("recent"))
	}

	if a.entities, err = openStorage(ctx, cfg.Storage, codec, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(middleware.WithNamespace("byteflow"), middleware.WithRegistry(reg))

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics, reg),
		server.WithConnSetup(a.setup),
	}
	if opts.tracing {
		serverOpts = append(serverOpts, server.WithTracing())
	}

	srvCfg := cfg.ServerOptions()
	if err := srvCfg.ValidateConfig(); err != nil {
		return errors.New("BF401").Wrap(err)
	}
	srv := server.New(codec, srvCfg, serverOpts...)

	if ln == nil {
		ln, err = net.Listen("tcp", srvCfg.Address)
		if err != nil {
			return errors.New("BF400").Wrap(err)
		}
	}

	if opts.announce > 0 {
		sched := async.NewScheduler(logger)
		defer sched.StopAll()
		var seq int32
		err := sched.Schedule("announce", opts.announce, func(time.Duration) {
			seq++
			n, err := srv.Broadcast(ctx, &demo.SimpleEntity{ID: seq, Desc: "announce", Time: time.Now().UTC()})
			logger.Debug("announce sent", "connections", n, "error", err)
		})
		if err != nil {
			return err
		}
	}

	printBanner(out)
	success(out, "Listening on %s", cyan("ws://"+ln.Addr().String()+srvCfg.Path))
	if len(srvCfg.JWTSecret) == 0 {
		warn(out, "Authentication disabled, set BYTEFLOW_JWT_SECRET to require tokens")
	}
	if a.recent != nil {
		info(out, "Caching recent packets in Redis at %s", cfg.Redis.Addr)
	}
	if a.entities != nil {
		info(out, "Storing entities in s3://%s/%s", cfg.Storage.Bucket, a.entities.Prefix())
	}

	err = srv.Serve(ctx, ln)
	if stderrors.Is(err, server.ErrServerClosed) {
		err = nil
	}
	fmt.Fprintln(out)
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New("BF404").Wrap(err)
	}
	if err != nil {
		return err
	}
	stats := srv.Connections().Stats()
	success(out, "Stopped after %d connections (peak %d)", stats.TotalAccepted, stats.Peak)
	return nil
}
