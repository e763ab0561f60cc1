package store

import (
	"context"
	"errors"

	"github.com/loykin/vpnclient/internal/event"
)

// ErrStorage wraps every failure to read or write the backing log.
var ErrStorage = errors.New("event store")

// EventStore is the append-only lifecycle log. It is the only state of the system:
// events are never updated or removed, and All returns them in append order.
type EventStore interface {
	// Append persists e at the end of the log before returning.
	Append(ctx context.Context, e event.Event) error
	// All returns the full log; an empty log yields an empty slice, not an error.
	All(ctx context.Context) ([]event.Event, error)
	Close() error
}
