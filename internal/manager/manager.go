// Package manager answers the status, up, down and history requests against one event log.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/history"
	"github.com/loykin/vpnclient/internal/lifecycle"
	"github.com/loykin/vpnclient/internal/metrics"
	"github.com/loykin/vpnclient/internal/status"
	"github.com/loykin/vpnclient/internal/store"
)

// Result is the answer to an up or down request.
type Result struct {
	// Target is UP for up requests and DOWN for down requests.
	Target event.Status
	// Skipped is set when the log already was in the requested state; nothing was appended.
	Skipped bool
	// Outcome is the executed operation when Skipped is false.
	Outcome lifecycle.Outcome
}

func (r Result) String() string {
	if r.Skipped {
		return "Already " + r.Target.String()
	}
	return r.Outcome.String()
}

// Options configures optional collaborators of a Manager.
type Options struct {
	Simulator lifecycle.Simulator
	Recorder  lifecycle.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager serializes every request so that one read-check-append sequence
// runs at a time against the store.
type Manager struct {
	mu     sync.Mutex
	st     store.EventStore
	op     *lifecycle.Operation
	logger *slog.Logger
	now    func() time.Time
}

// NewManager wires st with the given options. A nil Simulator always succeeds.
func NewManager(st store.EventStore, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Simulator == nil {
		opts.Simulator = lifecycle.Always(true)
	}
	return &Manager{
		st: st,
		op: &lifecycle.Operation{
			Store:     st,
			Simulator: opts.Simulator,
			Recorder:  opts.Recorder,
			Logger:    opts.Logger,
			Now:       opts.Now,
		},
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// Status derives the current report from the last event.
func (m *Manager) Status(ctx context.Context) (status.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, r, err := m.current(ctx)
	return r, err
}

// Up starts the connection unless the last event is UP.
func (m *Manager) Up(ctx context.Context) (Result, error) {
	return m.request(ctx, event.Starting, event.Up, func(r status.Report) bool {
		return r.Kind == status.Up
	})
}

// Down stops the connection unless the last event is DOWN or there is no usable status.
// An empty log therefore counts as already down, but not as already up.
func (m *Manager) Down(ctx context.Context) (Result, error) {
	return m.request(ctx, event.Stopping, event.Down, func(r status.Report) bool {
		return r.Kind == status.Down || r.Kind == status.NoEvents
	})
}

func (m *Manager) request(ctx context.Context, transitional, target event.Status, already func(status.Report) bool) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Target: target}
	_, r, err := m.current(ctx)
	if err != nil {
		return res, err
	}
	cmd := commandName(target)
	if already(r) {
		m.logger.Debug("Request skipped", "command", cmd, "status", r.Kind.String())
		metrics.IncSkipped(cmd)
		res.Skipped = true
		return res, nil
	}

	out, err := m.op.Execute(ctx, transitional, target)
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd, err)
	}
	res.Outcome = out
	metrics.ObserveOperation(target, out.Terminal, out.Duration().Seconds())
	if _, _, err := m.current(ctx); err != nil {
		m.logger.Warn("Refresh after operation failed", "command", cmd, "error", err)
	}
	return res, nil
}

// History runs q over the whole log.
func (m *Manager) History(ctx context.Context, q history.Query) (history.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, err := m.st.All(ctx)
	if err != nil {
		return history.Result{}, err
	}
	return history.Run(events, q), nil
}

// Refresh re-reads the log and updates the log gauges.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, err := m.current(ctx)
	return err
}

func (m *Manager) current(ctx context.Context) ([]event.Event, status.Report, error) {
	events, err := m.st.All(ctx)
	if err != nil {
		return nil, status.Report{}, err
	}
	r := status.Derive(events, m.now())
	metrics.ObserveLog(events, r)
	return events, r, nil
}

func commandName(target event.Status) string {
	if target == event.Up {
		return "up"
	}
	return "down"
}
