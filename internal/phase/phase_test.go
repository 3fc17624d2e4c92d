package phase

import (
	"strings"
	"testing"
	"time"

	"github.com/norm/attend-daemon/internal/timetable"
)

// monday returns a timestamp on Monday 2026-03-02 at the given clock time.
func monday(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 2, hour, min, sec, 0, time.UTC)
}

func load(t *testing.T, csv string) *timetable.Store {
	t.Helper()
	tt, err := timetable.Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return tt
}

const mathsCSV = `Day,SessionName,StartTime,EndTime,BreakStart,BreakEnd
Monday,Maths,09:00,10:30,09:45,10:00
`

func TestCurrentBoundaries(t *testing.T) {
	tt := load(t, mathsCSV)

	cases := []struct {
		at       time.Time
		kind     Kind
		boundary string // PhaseEnd or ResumeAt, depending on kind
	}{
		{monday(8, 59, 59), Idle, ""},
		{monday(9, 0, 0), InSession, "09:45"},
		{monday(9, 44, 59), InSession, "09:45"},
		{monday(9, 45, 0), OnBreak, "10:00"},
		{monday(9, 50, 0), OnBreak, "10:00"},
		{monday(9, 59, 59), OnBreak, "10:00"},
		{monday(10, 0, 0), InSession, "10:30"},
		{monday(10, 29, 59), InSession, "10:30"},
		{monday(10, 30, 0), Idle, ""},
	}

	for _, tc := range cases {
		p := Current(tt, tc.at)
		if p.Kind != tc.kind {
			t.Errorf("at %v: kind = %v, want %v", tc.at, p.Kind, tc.kind)
			continue
		}
		switch tc.kind {
		case InSession:
			if p.PhaseEnd.String() != tc.boundary {
				t.Errorf("at %v: phase end = %s, want %s", tc.at, p.PhaseEnd, tc.boundary)
			}
			if p.Name != "Maths" {
				t.Errorf("at %v: name = %q", tc.at, p.Name)
			}
		case OnBreak:
			if p.ResumeAt.String() != tc.boundary {
				t.Errorf("at %v: resume at = %s, want %s", tc.at, p.ResumeAt, tc.boundary)
			}
		}
	}
}

func TestCurrentNoBreak(t *testing.T) {
	tt := load(t, "Day,SessionName,StartTime,EndTime\nMonday,Physics,11:00,12:00\n")
	p := Current(tt, monday(11, 30, 0))
	if p.Kind != InSession || p.PhaseEnd.String() != "12:00" {
		t.Fatalf("got %+v", p)
	}
}

func TestCurrentOverlapEarliestStartWins(t *testing.T) {
	// Overlapping windows are not a load error; the earliest-starting match
	// is authoritative at query time.
	tt := load(t, `Day,SessionName,StartTime,EndTime
Monday,Late,09:30,11:00
Monday,Early,09:00,10:00
`)
	p := Current(tt, monday(9, 45, 0))
	if p.Kind != InSession || p.Name != "Early" {
		t.Fatalf("expected earliest-starting window to win, got %+v", p)
	}
}

func TestCurrentNilStore(t *testing.T) {
	if p := Current(nil, monday(9, 0, 0)); p.Kind != Idle {
		t.Fatalf("nil store should be idle, got %+v", p)
	}
}

func TestNextBoundaryInPhase(t *testing.T) {
	tt := load(t, mathsCSV)

	at, ok := NextBoundary(tt, monday(9, 10, 0))
	if !ok || !at.Equal(monday(9, 45, 0)) {
		t.Fatalf("in-session boundary = %v ok=%v, want 09:45", at, ok)
	}

	at, ok = NextBoundary(tt, monday(9, 50, 0))
	if !ok || !at.Equal(monday(10, 0, 0)) {
		t.Fatalf("on-break boundary = %v ok=%v, want 10:00", at, ok)
	}
}

func TestNextBoundaryIdleSameDay(t *testing.T) {
	tt := load(t, mathsCSV)
	at, ok := NextBoundary(tt, monday(7, 0, 0))
	if !ok || !at.Equal(monday(9, 0, 0)) {
		t.Fatalf("boundary = %v ok=%v, want Monday 09:00", at, ok)
	}
}

func TestNextBoundaryIdleScansFollowingDays(t *testing.T) {
	tt := load(t, `Day,SessionName,StartTime,EndTime
Monday,Maths,09:00,10:30
Thursday,Lab,13:00,15:00
`)
	// Monday evening: the next window is Thursday 13:00.
	at, ok := NextBoundary(tt, monday(18, 0, 0))
	want := time.Date(2026, 3, 5, 13, 0, 0, 0, time.UTC)
	if !ok || !at.Equal(want) {
		t.Fatalf("boundary = %v ok=%v, want %v", at, ok, want)
	}
}

func TestNextBoundaryWrapsToNextWeek(t *testing.T) {
	// Only Monday windows and it is already Monday evening: the boundary is
	// next Monday's first start.
	tt := load(t, mathsCSV)
	at, ok := NextBoundary(tt, monday(18, 0, 0))
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if !ok || !at.Equal(want) {
		t.Fatalf("boundary = %v ok=%v, want %v", at, ok, want)
	}
}

func TestNextBoundaryEmptyTimetable(t *testing.T) {
	tt := load(t, "Day,SessionName,StartTime,EndTime\n")
	if _, ok := NextBoundary(tt, monday(9, 0, 0)); ok {
		t.Fatal("empty timetable must have no boundary")
	}
	if _, ok := NextBoundary(nil, monday(9, 0, 0)); ok {
		t.Fatal("nil timetable must have no boundary")
	}
}

func TestStatusStrings(t *testing.T) {
	tt := load(t, mathsCSV)
	if got := Current(tt, monday(8, 0, 0)).Status(); got != "no active session" {
		t.Errorf("idle status = %q", got)
	}
	if got := Current(tt, monday(9, 50, 0)).Status(); got != "in break, resumes at 10:00" {
		t.Errorf("break status = %q", got)
	}
	if got := Current(tt, monday(9, 10, 0)).Status(); !strings.Contains(got, "Maths") {
		t.Errorf("in-session status = %q", got)
	}
}
