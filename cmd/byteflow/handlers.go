package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/byteflow-dev/byteflow/internal/demo"
	"github.com/byteflow-dev/byteflow/pkg/cache"
	"github.com/byteflow-dev/byteflow/pkg/connection"
	"github.com/byteflow-dev/byteflow/pkg/protoconn"
	"github.com/byteflow-dev/byteflow/pkg/server"
	"github.com/byteflow-dev/byteflow/pkg/storage"
)

// app holds the packet handlers of `byteflow serve`.
type app struct {
	logger *slog.Logger

	// recent caches the last SimpleEntity each account sent. Optional.
	recent    *cache.Store[demo.SimpleEntity]
	recentTTL time.Duration

	// entities persists every Entity received. Optional.
	entities *storage.Store[demo.Entity]
}

// account is the per-connection state kept once a client has logged in.
type account struct {
	name string
}

func accountOf(c *protoconn.Conn) (string, bool) {
	if a, ok := c.Connection().UserData().(*account); ok {
		return a.name, true
	}
	if id, ok := server.IdentityOf(c); ok && id.Username != "" {
		return id.Username, true
	}
	return "", false
}

func (a *app) setup(c *protoconn.Conn) {
	protoconn.Handle(c, a.login)
	protoconn.Handle(c, a.simple)
	protoconn.Handle(c, a.entity)
	c.OnPacket(func(_ context.Context, c *protoconn.Conn, packet any) error {
		a.logger.Warn("unhandled packet", "conn", c.ID(), "type", fmt.Sprintf("%T", packet))
		return nil
	})
}

func (a *app) login(ctx context.Context, c *protoconn.Conn, req *demo.LoginRequest) error {
	reject := func(reason string) error {
		a.logger.Info("login rejected", "conn", c.ID(), "account", req.Account, "reason", reason)
		err := c.Send(ctx, &demo.LoginResponse{Code: demo.LoginRejected, Description: reason})
		c.Close(ctx, connection.ClosePolicyViolation, reason)
		return err
	}

	if req.Account == "" {
		return reject("account required")
	}
	if id, ok := server.IdentityOf(c); ok && id.Username != "" && id.Username != req.Account {
		return reject("account does not match token")
	}

	// The identity from the upgrade stays as user data when present.
	if _, ok := server.IdentityOf(c); !ok {
		c.Connection().SetUserData(&account{name: req.Account})
	}
	a.logger.Info("login", "conn", c.ID(), "account", req.Account)
	return c.Send(ctx, &demo.LoginResponse{Code: demo.LoginOK, Description: "welcome " + req.Account})
}

// simple echoes the entity back and remembers it per account.
func (a *app) simple(ctx context.Context, c *protoconn.Conn, e *demo.SimpleEntity) error {
	if a.recent != nil {
		if name, ok := accountOf(c); ok {
			if err := a.recent.Set(ctx, name, e, a.recentTTL); err != nil {
				a.logger.Warn("cache write failed", "account", name, "error", err)
			}
		}
	}
	return c.Send(ctx, e)
}

// entity stores the entity under its ID and echoes it back.
func (a *app) entity(ctx context.Context, c *protoconn.Conn, e *demo.Entity) error {
	if a.entities != nil {
		if err := a.entities.Put(ctx, strconv.FormatInt(e.ID, 10), e); err != nil {
			return err
		}
	}
	return c.Send(ctx, e)
}
