package history

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/loykin/vpnclient/internal/event"
)

func ms(y int, m time.Month, d, h, min, s int) int64 {
	return time.Date(y, m, d, h, min, s, 0, time.UTC).UnixMilli()
}

func ptr[T any](v T) *T { return &v }

func mustDate(t *testing.T, s string) *Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return &d
}

// sample spans three days with every status, in log order.
func sample() []event.Event {
	return []event.Event{
		{Status: event.Starting, Timestamp: ms(2024, 12, 5, 10, 0, 0)},
		{Status: event.Up, Timestamp: ms(2024, 12, 5, 10, 0, 1)},
		{Status: event.Stopping, Timestamp: ms(2024, 12, 6, 0, 0, 0)},
		{Status: event.Failed, Timestamp: ms(2024, 12, 6, 23, 59, 59)},
		{Status: event.Stopping, Timestamp: ms(2024, 12, 7, 8, 0, 0)},
		{Status: event.Down, Timestamp: ms(2024, 12, 7, 8, 0, 2)},
	}
}

func TestRun_NoFilterAscIsLogOrder(t *testing.T) {
	res := Run(sample(), Query{})
	if len(res.Entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(res.Entries))
	}
	for i, e := range sample() {
		if res.Entries[i].Event != e {
			t.Fatalf("entry %d: want %+v got %+v", i, e, res.Entries[i].Event)
		}
	}
}

func TestRun_EmptyLogRendersNoEvents(t *testing.T) {
	res := Run(nil, Query{})
	if !res.Empty() || res.String() != "No events found" {
		t.Fatalf("unexpected result: %q", res.String())
	}
}

func TestRun_DateBoundsInclusive(t *testing.T) {
	cases := []struct {
		name     string
		from, to string
		want     []event.Status
	}{
		{"single day", "2024-12-06", "2024-12-06", []event.Status{event.Stopping, event.Failed}},
		{"from only", "2024-12-07", "", []event.Status{event.Stopping, event.Down}},
		{"to only", "", "2024-12-05", []event.Status{event.Starting, event.Up}},
		{"whole range", "2024-12-05", "2024-12-07", []event.Status{event.Starting, event.Up, event.Stopping, event.Failed, event.Stopping, event.Down}},
		{"before everything", "2024-11-01", "2024-11-30", nil},
		{"after everything", "2024-12-08", "", nil},
		{"inverted", "2024-12-07", "2024-12-05", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var q Query
			if tc.from != "" {
				q.From = mustDate(t, tc.from)
			}
			if tc.to != "" {
				q.To = mustDate(t, tc.to)
			}
			res := Run(sample(), q)
			var got []event.Status
			for _, e := range res.Entries {
				got = append(got, e.Status)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("want %v got %v", tc.want, got)
			}
			if len(tc.want) == 0 && res.String() != "No events found" {
				t.Fatalf("empty result must render as No events found, got %q", res.String())
			}
		})
	}
}

func TestRun_StatusFilter(t *testing.T) {
	for _, st := range event.Statuses {
		res := Run(sample(), Query{Status: ptr(st)})
		if res.Empty() {
			t.Fatalf("expected entries for %s", st)
		}
		for _, e := range res.Entries {
			if e.Status != st {
				t.Fatalf("filter %s leaked %s", st, e.Status)
			}
		}
	}
	res := Run(sample(), Query{Status: ptr(event.Stopping)})
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 STOPPING entries, got %d", len(res.Entries))
	}
}

func TestRun_CombinedFilters(t *testing.T) {
	q := Query{From: mustDate(t, "2024-12-06"), To: mustDate(t, "2024-12-07"), Status: ptr(event.Stopping), Order: Desc}
	res := Run(sample(), q)
	want := "Status: STOPPING, Timestamp: 2024-12-07T08:00:00\nStatus: STOPPING, Timestamp: 2024-12-06T00:00:00"
	if res.String() != want {
		t.Fatalf("unexpected output:\n%s", res.String())
	}
}

func TestRun_SortDirections(t *testing.T) {
	// Timestamps are distinct: equal ones keep log order in both directions,
	// so desc is the reverse of asc only without ties.
	shuffled := []event.Event{
		{Status: event.Down, Timestamp: 30},
		{Status: event.Up, Timestamp: 10},
		{Status: event.Failed, Timestamp: 20},
	}
	asc := Run(shuffled, Query{Order: Asc})
	desc := Run(shuffled, Query{Order: Desc})
	if asc.Entries[0].Timestamp != 10 || asc.Entries[2].Timestamp != 30 {
		t.Fatalf("asc wrong: %+v", asc.Entries)
	}
	reversed := slices.Clone(asc.Entries)
	slices.Reverse(reversed)
	if !slices.Equal(reversed, desc.Entries) {
		t.Fatalf("reversed asc must equal desc: %+v vs %+v", reversed, desc.Entries)
	}
}

func TestRun_StableTies(t *testing.T) {
	tied := []event.Event{
		{Status: event.Starting, Timestamp: 100},
		{Status: event.Up, Timestamp: 100},
		{Status: event.Stopping, Timestamp: 50},
		{Status: event.Down, Timestamp: 200},
	}
	asc := Run(tied, Query{Order: Asc})
	if asc.Entries[1].Status != event.Starting || asc.Entries[2].Status != event.Up {
		t.Fatalf("asc ties must keep log order: %+v", asc.Entries)
	}
	desc := Run(tied, Query{Order: Desc})
	if desc.Entries[1].Status != event.Starting || desc.Entries[2].Status != event.Up {
		t.Fatalf("desc ties must keep log order: %+v", desc.Entries)
	}
	for i := 0; i+1 < len(desc.Entries); i++ {
		if desc.Entries[i].Timestamp < desc.Entries[i+1].Timestamp {
			t.Fatalf("desc not ordered: %+v", desc.Entries)
		}
	}
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	in := []event.Event{{Status: event.Down, Timestamp: 2}, {Status: event.Up, Timestamp: 1}}
	_ = Run(in, Query{})
	if in[0].Timestamp != 2 {
		t.Fatalf("input reordered")
	}
}

func TestEntryFormatting(t *testing.T) {
	e := Entry{Event: event.Event{Status: event.Up, Timestamp: ms(2024, 12, 7, 10, 15, 0) + 999}}
	if got := e.String(); got != "Status: UP, Timestamp: 2024-12-07T10:15:00" {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-12-07")
	if err != nil || d.String() != "2024-12-07" {
		t.Fatalf("parse: %v %v", d, err)
	}
	for _, bad := range []string{"2024-12-99", "2024-24-24", "aaa", "07-12-2024", "20241207", "2024-1-07", ""} {
		_, err := ParseDate(bad)
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate for %q, got %v", bad, err)
		}
		if !strings.Contains(err.Error(), `"`+bad+`"`) {
			t.Fatalf("error must name the literal %q: %v", bad, err)
		}
	}
}

func TestDateOfUsesUTC(t *testing.T) {
	// 2024-12-07 01:00 at +03:00 is still 2024-12-06 in UTC
	local := time.Date(2024, 12, 7, 1, 0, 0, 0, time.FixedZone("X", 3*3600))
	if got := DateOf(local).String(); got != "2024-12-06" {
		t.Fatalf("expected UTC date, got %s", got)
	}
}

func TestParseSortOrder(t *testing.T) {
	for in, want := range map[string]SortOrder{"": Asc, "asc": Asc, "desc": Desc} {
		got, err := ParseSortOrder(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v", in, got, err)
		}
	}
	if _, err := ParseSortOrder("DESC"); !errors.Is(err, ErrInvalidSortOrder) {
		t.Fatalf("expected ErrInvalidSortOrder, got %v", err)
	}
}

func TestParamsQuery(t *testing.T) {
	q, err := Params{}.Query()
	if err != nil {
		t.Fatalf("empty params: %v", err)
	}
	if q.From != nil || q.To != nil || q.Status != nil || q.Order != Asc {
		t.Fatalf("expected unfiltered asc query, got %+v", q)
	}

	q, err = Params{From: "2024-12-01", To: "2024-12-31", Status: "UP", Sort: "desc"}.Query()
	if err != nil {
		t.Fatalf("full params: %v", err)
	}
	if q.From.String() != "2024-12-01" || q.To.String() != "2024-12-31" || *q.Status != event.Up || q.Order != Desc {
		t.Fatalf("unexpected query %+v", q)
	}

	if _, err := (Params{From: "2024-13-01"}).Query(); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := (Params{To: "tomorrow"}).Query(); err == nil || err.Error() != `invalid date "tomorrow": text could not be parsed` {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := (Params{Status: "STATUS"}).Query(); err == nil || err.Error() != "no such status: STATUS" {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := (Params{Sort: "up"}).Query(); !errors.Is(err, ErrInvalidSortOrder) {
		t.Fatalf("expected ErrInvalidSortOrder, got %v", err)
	}
}
