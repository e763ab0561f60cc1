package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/vpnclient/internal/event"
)

// Record is a lifecycle event mirrored to external systems.
// The JSON events file stays the source of truth; records are best-effort copies.
type Record struct {
	OperationID string       `json:"operation_id"`
	Status      event.Status `json:"status"`
	Timestamp   int64        `json:"timestamp"` // epoch milliseconds, same as the log
	OccurredAt  time.Time    `json:"occurred_at"`
}

// NewRecord builds the mirrored form of e for operation opID.
func NewRecord(opID string, e event.Event) Record {
	return Record{OperationID: opID, Status: e.Status, Timestamp: e.Timestamp, OccurredAt: e.Time()}
}

// Sink is a destination for history records (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, r Record) error
}

// Fanout sends every record to all sinks. A failing sink is logged and skipped.
type Fanout struct {
	Sinks  []Sink
	Logger *slog.Logger
}

// Send delivers r to every sink and returns the joined errors, if any.
func (f *Fanout) Send(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range f.Sinks {
		if err := s.Send(ctx, r); err != nil {
			errs = append(errs, err)
			f.logger().Warn("History sink failed", "status", r.Status.String(), "op", r.OperationID, "error", err)
		}
	}
	return errors.Join(errs...)
}

// Record implements lifecycle.Recorder.
func (f *Fanout) Record(ctx context.Context, opID string, e event.Event) {
	_ = f.Send(ctx, NewRecord(opID, e))
}

// Close closes every sink that supports it.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.Sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
