// Package status derives the user-facing connection status from the tail of the event log.
package status

import (
	"fmt"
	"time"

	"github.com/loykin/vpnclient/internal/event"
)

// Kind is the derived state reported to users.
type Kind int

const (
	// NoEvents covers an empty log and any tail that is not UP or DOWN
	// (STARTING, STOPPING, FAILED).
	NoEvents Kind = iota
	Up
	Down
)

func (k Kind) String() string {
	switch k {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	default:
		return "NONE"
	}
}

// NoEventsMessage is shared by status and history output.
const NoEventsMessage = "No events found"

// Report is the result of Derive.
type Report struct {
	Kind Kind
	// Uptime is whole seconds since the last UP event; zero unless Kind is Up.
	Uptime int64
	// Since is the timestamp of the last event when Kind is Up or Down.
	Since time.Time
}

// Derive inspects only the last event of events. It holds no state.
func Derive(events []event.Event, now time.Time) Report {
	if len(events) == 0 {
		return Report{Kind: NoEvents}
	}
	last := events[len(events)-1]
	switch last.Status {
	case event.Up:
		return Report{Kind: Up, Uptime: uptimeSeconds(last.Timestamp, now), Since: last.Time()}
	case event.Down:
		return Report{Kind: Down, Since: last.Time()}
	default:
		return Report{Kind: NoEvents}
	}
}

func uptimeSeconds(ts int64, now time.Time) int64 {
	d := now.UnixMilli() - ts
	if d < 0 {
		return 0
	}
	return d / 1000
}

// String renders the report exactly as the CLI prints it.
func (r Report) String() string {
	switch r.Kind {
	case Up:
		return fmt.Sprintf("Status: UP\r\nUptime: %d seconds", r.Uptime)
	case Down:
		return "Status: DOWN"
	default:
		return NoEventsMessage
	}
}
