// Package vpnclient tracks the lifecycle of a simulated VPN connection through an
// append-only event log and answers status, up, down and history requests over it.
package vpnclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/vpnclient/internal/auth"
	"github.com/loykin/vpnclient/internal/config"
	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/history"
	"github.com/loykin/vpnclient/internal/history/factory"
	"github.com/loykin/vpnclient/internal/lifecycle"
	"github.com/loykin/vpnclient/internal/logger"
	"github.com/loykin/vpnclient/internal/manager"
	"github.com/loykin/vpnclient/internal/metrics"
	"github.com/loykin/vpnclient/internal/server"
	"github.com/loykin/vpnclient/internal/status"
	"github.com/loykin/vpnclient/internal/store"
	itls "github.com/loykin/vpnclient/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Event = event.Event

type Status = event.Status

type Report = status.Report

type Result = manager.Result

type HistoryParams = history.Params

type HistoryResult = history.Result

type Simulator = lifecycle.Simulator

type SimulatorFunc = lifecycle.SimulatorFunc

type Server = server.Server

type EventStore = store.EventStore

// registry holds the vpnclient collectors only, so textfiles carry no Go runtime noise.
var registry = prometheus.NewRegistry()

// HashPassword returns a bcrypt hash for a [[server.auth.users]] password_hash.
func HashPassword(password string) (string, error) { return auth.HashPassword(password) }

// LoadConfig reads a TOML file (optional) plus VPN_CLIENT_* overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config { return config.Default() }

type options struct {
	simulator Simulator
	stderr    io.Writer
	now       func() time.Time
}

// Option customizes Open.
type Option func(*options)

// WithSimulator replaces the random simulator built from the simulation config.
func WithSimulator(s Simulator) Option { return func(o *options) { o.simulator = s } }

// WithStderr redirects diagnostic logs; defaults to os.Stderr.
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

// WithClock sets the time source for events and uptime.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Client is the wired set of store, simulator, history sinks, metrics and logger.
type Client struct {
	cfg       Config
	mgr       *manager.Manager
	st        store.EventStore
	sinks     *history.Fanout
	logger    *slog.Logger
	logCloser io.Closer
}

// Open wires a Client from cfg. Close releases the store, sinks and log file.
func Open(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lg, logCloser, err := logger.New(cfg.Log, o.stderr)
	if err != nil {
		return nil, err
	}
	if err := metrics.Register(registry); err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	st, err := store.CreateStore(cfg.Store)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	sinks, err := factory.NewFanout(cfg.History.Sinks, lg)
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, err
	}
	sim := o.simulator
	if sim == nil {
		s := cfg.Simulation
		sim = lifecycle.NewRandomSimulator(s.FailureRate, s.MinDuration, s.MaxDuration)
	}
	mgr := manager.NewManager(st, manager.Options{
		Simulator: sim,
		Recorder:  sinks,
		Logger:    lg,
		Now:       o.now,
	})
	lg.Debug("Client opened", "store", cfg.Store.Type, "path", cfg.Store.Path, "sinks", len(sinks.Sinks))
	return &Client{cfg: cfg, mgr: mgr, st: st, sinks: sinks, logger: lg, logCloser: logCloser}, nil
}

func (c *Client) Config() Config          { return c.cfg }
func (c *Client) Logger() *slog.Logger    { return c.logger }
func (c *Client) Store() EventStore       { return c.st }

// Gatherer exposes the vpnclient metrics.
func (c *Client) Gatherer() prometheus.Gatherer { return registry }

func (c *Client) Status(ctx context.Context) (Report, error) { return c.mgr.Status(ctx) }
func (c *Client) Up(ctx context.Context) (Result, error)     { return c.mgr.Up(ctx) }
func (c *Client) Down(ctx context.Context) (Result, error)   { return c.mgr.Down(ctx) }

// History validates p before reading the log.
func (c *Client) History(ctx context.Context, p HistoryParams) (HistoryResult, error) {
	q, err := p.Query()
	if err != nil {
		return HistoryResult{}, err
	}
	return c.mgr.History(ctx, q)
}

// WriteMetrics refreshes the log gauges and writes metrics.textfile. It is a no-op
// when no textfile is configured.
func (c *Client) WriteMetrics(ctx context.Context) error {
	path := c.cfg.Metrics.Textfile
	if path == "" {
		return nil
	}
	if err := c.mgr.Refresh(ctx); err != nil {
		return err
	}
	if err := metrics.WriteTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// NewServer starts the HTTP API on server.listen under server.base_path.
// With server.tls.enabled the listener serves HTTPS; with server.auth.enabled
// every route requires credentials.
func (c *Client) NewServer() (*Server, error) {
	tlsCfg, err := itls.Setup(c.cfg.Server.TLS)
	if err != nil {
		return nil, fmt.Errorf("tls setup: %w", err)
	}
	r := server.NewRouter(c.mgr, c.cfg.Server.BasePath, registry)
	if c.cfg.Server.Auth.Enabled {
		svc, err := auth.NewAuthService(c.cfg.Server.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth setup: %w", err)
		}
		r.WithAuth(svc)
	}
	return server.NewServer(c.cfg.Server.Listen, r, tlsCfg, c.logger)
}

func (c *Client) Close() error {
	return errors.Join(c.sinks.Close(), c.st.Close(), c.logCloser.Close())
}
