package main

import (
	"context"
	"fmt"
	"io"

	"github.com/loykin/vpnclient"
	"github.com/loykin/vpnclient/pkg/client"
)

type command struct {
	global *GlobalFlags
	opts   []vpnclient.Option
}

// withClient loads the config, opens a client for one command and refreshes the
// metrics textfile once fn succeeded.
func (c command) withClient(ctx context.Context, mutate func(*vpnclient.Config), fn func(*vpnclient.Client) error) error {
	cfg, err := vpnclient.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	cl, err := vpnclient.Open(cfg, c.opts...)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	if err := fn(cl); err != nil {
		return err
	}
	if err := cl.WriteMetrics(ctx); err != nil {
		cl.Logger().Warn("Metrics textfile not written", "path", cfg.Metrics.Textfile, "error", err)
	}
	return nil
}

func (c command) Status(ctx context.Context, out io.Writer) error {
	if c.remote() {
		return c.withAPI(func(api *client.Client) error {
			r, err := api.Status(ctx)
			if err != nil {
				return err
			}
			return writeLine(out, r.Message)
		})
	}
	return c.withClient(ctx, nil, func(cl *vpnclient.Client) error {
		r, err := cl.Status(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, r.String())
		return err
	})
}

func (c command) Up(ctx context.Context, out io.Writer) error {
	if c.remote() {
		return c.withAPI(func(api *client.Client) error {
			return printOperation(ctx, out, api.Up)
		})
	}
	return c.withClient(ctx, nil, func(cl *vpnclient.Client) error {
		return printResult(ctx, out, cl.Up)
	})
}

func (c command) Down(ctx context.Context, out io.Writer) error {
	if c.remote() {
		return c.withAPI(func(api *client.Client) error {
			return printOperation(ctx, out, api.Down)
		})
	}
	return c.withClient(ctx, nil, func(cl *vpnclient.Client) error {
		return printResult(ctx, out, cl.Down)
	})
}

func printResult(ctx context.Context, out io.Writer, run func(context.Context) (vpnclient.Result, error)) error {
	res, err := run(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, res.String())
	return err
}

func (c command) History(ctx context.Context, out io.Writer, f HistoryFlags) error {
	p := vpnclient.HistoryParams{From: f.From, To: f.To, Status: f.Status, Sort: f.Sort}
	// Reject bad arguments before the log is opened.
	if _, err := p.Query(); err != nil {
		return err
	}
	if c.remote() {
		return c.withAPI(func(api *client.Client) error {
			res, err := api.History(ctx, client.HistoryQuery{From: f.From, To: f.To, Status: f.Status, Sort: f.Sort})
			if err != nil {
				return err
			}
			return writeLine(out, res.Message)
		})
	}
	return c.withClient(ctx, nil, func(cl *vpnclient.Client) error {
		res, err := cl.History(ctx, p)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, res.String())
		return err
	})
}

// HashPassword prints the bcrypt hash for a [[server.auth.users]] entry.
func (c command) HashPassword(out io.Writer, password string) error {
	h, err := vpnclient.HashPassword(password)
	if err != nil {
		return err
	}
	return writeLine(out, h)
}

// Serve runs the HTTP API until ctx is cancelled or the listener fails.
func (c command) Serve(ctx context.Context, out io.Writer, f ServeFlags) error {
	override := func(cfg *vpnclient.Config) {
		if f.Listen != "" {
			cfg.Server.Listen = f.Listen
		}
		if f.BasePath != "" {
			cfg.Server.BasePath = f.BasePath
		}
	}
	return c.withClient(ctx, override, func(cl *vpnclient.Client) error {
		srv, err := cl.NewServer()
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		_, _ = fmt.Fprintf(out, "Serving vpn-client API on %s%s\n", srv.URL(), cl.Config().Server.BasePath)

		select {
		case <-ctx.Done():
		case err := <-srv.Done():
			return err
		}
		cl.Logger().Info("Shutting down HTTP API")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return <-srv.Done()
	})
}
