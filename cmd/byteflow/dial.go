package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteflow-dev/byteflow/internal/config"
	"github.com/byteflow-dev/byteflow/internal/demo"
	"github.com/byteflow-dev/byteflow/internal/errors"
	"github.com/byteflow-dev/byteflow/pkg/async"
	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/middleware"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
	"github.com/byteflow-dev/byteflow/pkg/server"
)

type dialOptions struct {
	token   string
	secret  string
	user    string
	account string
	count   int
	timeout time.Duration
}

func dialCmd(g *globalFlags) *cobra.Command {
	opts := dialOptions{}

	cmd := &cobra.Command{
		Use:   "dial [url]",
		Short: "Connect to a server, log in and exchange packets",
		Long: `Connect to a ByteFlow server, send a LoginRequest and echo a number of
SimpleEntity packets.

The URL defaults to client.url from byteflow.json. A bearer token is sent
with the upgrade when --token is given, or issued locally from --secret.

Examples:
  byteflow dial
  byteflow dial ws://localhost:5100/ws --account=alice --count=10
  byteflow dial --secret=s3cret --user=alice --account=alice`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			url := cfg.Client.URL
			if len(args) > 0 {
				url = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDial(ctx, cfg, opts, url, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token sent with the upgrade")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "Issue a token signed with this secret")
	cmd.Flags().StringVar(&opts.user, "user", "", "User of the issued token (default --account)")
	cmd.Flags().StringVar(&opts.account, "account", "guest", "Account to log in with")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 3, "Number of SimpleEntity packets to echo")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Time to wait for each answer")

	return cmd
}

// dialSession collects what the server sent back.
type dialSession struct {
	mu     sync.Mutex
	login  *demo.LoginResponse
	echoed int
	closed *connection.CloseEvent
}

func (s *dialSession) loggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login != nil || s.closed != nil
}

func (s *dialSession) echoedAtLeast(n int) func() bool {
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.echoed >= n || s.closed != nil
	}
}

func (s *dialSession) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == nil {
		return nil
	}
	return errors.New("BF302").WithDetail(fmt.Sprintf("The server closed the connection with status %d: %s", s.closed.Status, s.closed.Reason))
}

func runDial(ctx context.Context, cfg *config.Config, opts dialOptions, url string, out io.Writer) error {
	if opts.count < 0 {
		return errors.New("BF101").WithDetail("--count must not be negative.")
	}

	token := opts.token
	if token == "" && opts.secret != "" {
		user := opts.user
		if user == "" {
			user = opts.account
		}
		var err error
		if token, err = server.IssueToken([]byte(opts.secret), user, user, time.Hour); err != nil {
			return err
		}
	}

	codec, err := demo.NewCodec()
	if err != nil {
		return err
	}

	dialer := connection.NewWebSocketDialer()
	if token != "" {
		dialer.Header.Set("Authorization", "Bearer "+token)
	}
	connOpts := []connection.Option{connection.WithDialer(dialer), connection.WithTag("dial")}
	if cfg.Client.SkipProbe {
		connOpts = append(connOpts, connection.WithSkipProbe())
	}

	s := &dialSession{}
	client := protoconn.Dial([]string{url}, codec,
		protoconn.WithLogger(slog.Default()),
		protoconn.WithHeartbeatInterval(time.Duration(cfg.Client.HeartbeatInterval)),
		protoconn.WithConnectionOptions(connOpts...),
		protoconn.WithHooks(protoconn.Hooks{
			Closed: func(_ *protoconn.Conn, e connection.CloseEvent) {
				s.mu.Lock()
				s.closed = &e
				s.mu.Unlock()
			},
		}),
	)
	defer client.Release()

	protoconn.Handle(client, func(_ context.Context, _ *protoconn.Conn, r *demo.LoginResponse) error {
		s.mu.Lock()
		s.login = r
		s.mu.Unlock()
		return nil
	})
	protoconn.Handle(client, func(_ context.Context, _ *protoconn.Conn, e *demo.SimpleEntity) error {
		s.mu.Lock()
		s.echoed++
		s.mu.Unlock()
		return nil
	})

	connectCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	err = middleware.TraceConnect(connectCtx, client)
	cancel()
	if err != nil {
		return err
	}
	success(out, "Connected to %s", cyan(client.Connection().Endpoint()))

	if err := client.Send(ctx, &demo.LoginRequest{Account: opts.account, Token: token}); err != nil {
		return err
	}
	if err := async.WaitUntil(ctx, 10*time.Millisecond, opts.timeout, s.loggedIn); err != nil {
		return err
	}
	s.mu.Lock()
	login := s.login
	s.mu.Unlock()
	if login == nil {
		return s.closedErr()
	}
	if login.Code != demo.LoginOK {
		return fmt.Errorf("login rejected: %s", login.Description)
	}
	success(out, "Logged in: %s", login.Description)

	start := time.Now()
	for i := 1; i <= opts.count; i++ {
		e := &demo.SimpleEntity{
			ID:   int32(i),
			Desc: fmt.Sprintf("ping %d", i),
			Time: time.Now().UTC().Truncate(time.Millisecond),
		}
		if err := client.Send(ctx, e); err != nil {
			return err
		}
	}
	if err := async.WaitUntil(ctx, 10*time.Millisecond, opts.timeout, s.echoedAtLeast(opts.count)); err != nil {
		return err
	}
	if err := s.closedErr(); err != nil {
		return err
	}
	success(out, "Echoed %d packets in %s", opts.count, faint(time.Since(start).Round(time.Microsecond).String()))

	closeCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	client.Close(closeCtx, connection.CloseNormal, "done")
	select {
	case <-client.Connection().Done():
	case <-closeCtx.Done():
		if !stderrors.Is(closeCtx.Err(), context.Canceled) {
			warn(out, "Server did not acknowledge the close")
		}
	}
	return nil
}
