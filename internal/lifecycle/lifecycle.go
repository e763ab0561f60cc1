// Package lifecycle runs the simulated start/stop action and records it as exactly
// two events: a transitional one, then a terminal one.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/store"
)

// Recorder observes every event appended by an Operation.
type Recorder interface {
	Record(ctx context.Context, opID string, e event.Event)
}

// Outcome describes one executed operation.
type Outcome struct {
	ID           string
	Transitional event.Status
	Terminal     event.Status
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Succeeded reports whether the simulated action reached its target.
func (o Outcome) Succeeded() bool { return o.Terminal != event.Failed }

// Duration is the time spent between the two appends.
func (o Outcome) Duration() time.Duration { return o.FinishedAt.Sub(o.StartedAt) }

// Message is the line printed when the transitional event is written.
func (o Outcome) Message() string { return TransitionMessage(o.Transitional) }

func (o Outcome) String() string {
	return fmt.Sprintf("%s\r\nStatus: %s", o.Message(), o.Terminal)
}

// TransitionMessage returns "Starting..." or "Stopping...".
func TransitionMessage(s event.Status) string {
	switch s {
	case event.Starting:
		return "Starting..."
	case event.Stopping:
		return "Stopping..."
	default:
		return string(s)
	}
}

// Operation appends the events of a start or stop attempt.
type Operation struct {
	Store     store.EventStore
	Simulator Simulator
	Recorder  Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

func (o *Operation) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Operation) log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Execute appends transitional, runs the simulator and appends target or FAILED.
// A failed simulation is a normal Outcome. An error means the log could not be written;
// when the first append fails nothing has been recorded.
func (o *Operation) Execute(ctx context.Context, transitional, target event.Status) (Outcome, error) {
	if !transitional.Transitional() || !target.Terminal() || target == event.Failed {
		return Outcome{}, fmt.Errorf("invalid lifecycle transition %s -> %s", transitional, target)
	}
	out := Outcome{ID: uuid.NewString(), Transitional: transitional}
	l := o.log().With("op", out.ID, "target", target.String())

	out.StartedAt = o.now()
	first := event.New(transitional, out.StartedAt)
	if err := o.Store.Append(ctx, first); err != nil {
		return Outcome{}, fmt.Errorf("record %s: %w", transitional, err)
	}
	o.record(ctx, out.ID, first)
	l.Info("Lifecycle operation started", "status", transitional.String())

	ok := o.Simulator.Simulate(ctx, target)
	out.Terminal = target
	if !ok {
		out.Terminal = event.Failed
	}

	// The terminal event is written even if ctx was cancelled during the simulation.
	wctx := context.WithoutCancel(ctx)
	out.FinishedAt = o.now()
	second := event.New(out.Terminal, out.FinishedAt)
	if err := o.Store.Append(wctx, second); err != nil {
		return Outcome{}, fmt.Errorf("record %s: %w", out.Terminal, err)
	}
	o.record(wctx, out.ID, second)

	if ok {
		l.Info("Lifecycle operation completed", "status", out.Terminal.String(), "duration", out.Duration())
	} else {
		l.Warn("Lifecycle operation failed", "status", out.Terminal.String(), "duration", out.Duration())
	}
	return out, nil
}

func (o *Operation) record(ctx context.Context, id string, e event.Event) {
	if o.Recorder != nil {
		o.Recorder.Record(ctx, id, e)
	}
}
