package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownStatus is returned when a literal does not name any Status.
var ErrUnknownStatus = errors.New("no such status")

// Status is the lifecycle state recorded by an Event.
//
// State Machine:
// (empty|DOWN) -> STARTING -> UP|FAILED
// UP -> STOPPING -> DOWN|FAILED
type Status string

const (
	Starting Status = "STARTING"
	Up       Status = "UP"
	Stopping Status = "STOPPING"
	Down     Status = "DOWN"
	Failed   Status = "FAILED"
)

// Statuses lists every Status in declaration order.
var Statuses = []Status{Starting, Up, Stopping, Down, Failed}

// ParseStatus returns the Status spelled exactly as s.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownStatus, s)
}

func (s Status) String() string { return string(s) }

// Transitional reports whether s is always followed by a terminal status.
func (s Status) Transitional() bool { return s == Starting || s == Stopping }

// Terminal reports whether s closes a lifecycle operation.
func (s Status) Terminal() bool { return s == Up || s == Down || s == Failed }

func (s Status) MarshalJSON() ([]byte, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}
	return json.Marshal(string(s))
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Event is one immutable entry of the lifecycle log.
// Timestamp is milliseconds since the Unix epoch, UTC.
type Event struct {
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// New stamps status with t.
func New(status Status, t time.Time) Event {
	return Event{Status: status, Timestamp: t.UnixMilli()}
}

// Time returns the event timestamp as a UTC time.
func (e Event) Time() time.Time { return time.UnixMilli(e.Timestamp).UTC() }
