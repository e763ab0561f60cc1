package store

import (
	"context"
	"sync"

	"github.com/loykin/vpnclient/internal/event"
)

// Memory is an in-process EventStore used by tests and embedders.
type Memory struct {
	mu     sync.Mutex
	events []event.Event

	// failAfter < 0 disables failure injection.
	failAfter int
	failErr   error
}

func NewMemory(seed ...event.Event) *Memory {
	return &Memory{events: append([]event.Event(nil), seed...), failAfter: -1}
}

// FailAppendAfter makes Append return err once n more appends have succeeded.
func (m *Memory) FailAppendAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
}

func (m *Memory) Append(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter == 0 {
		return m.failErr
	}
	if m.failAfter > 0 {
		m.failAfter--
	}
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) All(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event{}, m.events...), nil
}

func (m *Memory) Close() error { return nil }
