package history

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/status"
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidSortOrder = errors.New("invalid sort order")
)

// DateLayout is the accepted format of --from/--to bounds.
const DateLayout = "2006-01-02"

// TimestampLayout renders event times: ISO-8601 local date-time, seconds, no offset.
const TimestampLayout = "2006-01-02T15:04:05"

// Date is a calendar day without time of day, stored as UTC midnight.
type Date struct{ t time.Time }

// ParseDate parses a YYYY-MM-DD literal. Out-of-range fields are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil || len(s) != len(DateLayout) {
		return Date{}, fmt.Errorf("%w %q: text could not be parsed", ErrInvalidDate, s)
	}
	return Date{t: t}, nil
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) String() string     { return d.t.Format(DateLayout) }

// SortOrder orders history by timestamp.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortOrder accepts "asc" or "desc"; empty means Asc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	default:
		return "", fmt.Errorf("%w %q: expected asc or desc", ErrInvalidSortOrder, s)
	}
}

// Query selects and orders events. Nil bounds and a nil Status mean "no filter".
type Query struct {
	From   *Date
	To     *Date
	Status *event.Status
	Order  SortOrder
}

// Params holds the raw filter literals of a history request. Empty fields are absent.
type Params struct {
	From   string
	To     string
	Status string
	Sort   string
}

// Query validates p. Nothing is read from the log, so callers can reject bad
// arguments before touching storage.
func (p Params) Query() (Query, error) {
	var q Query
	if p.From != "" {
		d, err := ParseDate(p.From)
		if err != nil {
			return Query{}, err
		}
		q.From = &d
	}
	if p.To != "" {
		d, err := ParseDate(p.To)
		if err != nil {
			return Query{}, err
		}
		q.To = &d
	}
	if p.Status != "" {
		st, err := event.ParseStatus(p.Status)
		if err != nil {
			return Query{}, err
		}
		q.Status = &st
	}
	order, err := ParseSortOrder(p.Sort)
	if err != nil {
		return Query{}, err
	}
	q.Order = order
	return q, nil
}

// Match reports whether e passes every filter of q. Both date bounds are inclusive.
func (q Query) Match(e event.Event) bool {
	day := DateOf(e.Time())
	if q.From != nil && day.Before(*q.From) {
		return false
	}
	if q.To != nil && day.After(*q.To) {
		return false
	}
	if q.Status != nil && e.Status != *q.Status {
		return false
	}
	return true
}

// Entry is one line of a history listing.
type Entry struct {
	event.Event
}

// FormattedTimestamp is the UTC timestamp at second precision.
func (e Entry) FormattedTimestamp() string { return e.Time().Format(TimestampLayout) }

func (e Entry) String() string {
	return fmt.Sprintf("Status: %s, Timestamp: %s", e.Status, e.FormattedTimestamp())
}

// Result is the outcome of Run. An empty Result means no event matched.
type Result struct {
	Entries []Entry
}

func (r Result) Empty() bool { return len(r.Entries) == 0 }

// String renders one entry per line, or the shared "No events found" text.
func (r Result) String() string {
	if r.Empty() {
		return status.NoEventsMessage
	}
	lines := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Run filters events with q and sorts survivors by timestamp. Equal timestamps keep
// log order in both directions.
func Run(events []event.Event, q Query) Result {
	out := make([]Entry, 0, len(events))
	for _, e := range events {
		if q.Match(e) {
			out = append(out, Entry{Event: e})
		}
	}
	desc := q.Order == Desc
	slices.SortStableFunc(out, func(a, b Entry) int {
		switch {
		case a.Timestamp == b.Timestamp:
			return 0
		case (a.Timestamp < b.Timestamp) != desc:
			return -1
		default:
			return 1
		}
	})
	return Result{Entries: out}
}
