package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/vpnclient/pkg/client"
)

func (c command) remote() bool { return c.global.APIURL != "" }

// withAPI builds a client for the daemon at --api-url. Its request logging is
// discarded; failures surface as the returned error.
func (c command) withAPI(fn func(*client.Client) error) error {
	cfg := client.Config{
		BaseURL:  c.global.APIURL,
		Timeout:  c.global.APITimeout,
		Logger:   slog.New(slog.DiscardHandler),
		Insecure: c.global.Insecure,
		Username: c.global.APIUser,
		Password: c.global.APIPass,
		Token:    c.global.APIToken,
	}
	if c.global.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: c.global.CACert}
	}
	api, err := client.New(cfg)
	if err != nil {
		return err
	}
	return fn(api)
}

func printOperation(ctx context.Context, out io.Writer, run func(context.Context) (client.OperationResponse, error)) error {
	res, err := run(ctx)
	if err != nil {
		return err
	}
	return writeLine(out, res.Message)
}

func writeLine(out io.Writer, s string) error {
	_, err := fmt.Fprintln(out, s)
	return err
}
