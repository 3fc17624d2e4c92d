// Package phase derives the current scheduling phase from a timetable
// snapshot and a wall-clock instant. Phases are computed fresh on every
// query; nothing here caches state.
package phase

import (
	"fmt"
	"time"

	"github.com/norm/attend-daemon/internal/timetable"
)

// Kind enumerates the three scheduling phases.
type Kind int

const (
	Idle Kind = iota
	InSession
	OnBreak
)

func (k Kind) String() string {
	switch k {
	case InSession:
		return "in_session"
	case OnBreak:
		return "on_break"
	default:
		return "idle"
	}
}

// Phase is the derived scheduling state for one instant. PhaseEnd is set for
// InSession, ResumeAt for OnBreak; both are times of day on the queried date.
type Phase struct {
	Kind     Kind
	Name     string
	PhaseEnd timetable.TimeSpec
	ResumeAt timetable.TimeSpec
}

// Status renders the phase for human-facing status reporting. Idle and
// on-break are first-class states here, not failures.
func (p Phase) Status() string {
	switch p.Kind {
	case InSession:
		return fmt.Sprintf("in session %q until %s", p.Name, p.PhaseEnd)
	case OnBreak:
		return fmt.Sprintf("in break, resumes at %s", p.ResumeAt)
	default:
		return "no active session"
	}
}

// Current computes the phase at now. Windows are scanned in start order and
// the first one containing now wins; overlapping windows are a query-time
// policy (earliest-start precedence), not an error.
func Current(tt *timetable.Store, now time.Time) Phase {
	if tt == nil {
		return Phase{Kind: Idle}
	}
	t := timetable.TimeSpec{Hour: now.Hour(), Minute: now.Minute()}
	for _, w := range tt.Sessions(timetable.DayIndex(now.Weekday())) {
		if t.Before(w.Start) || !t.Before(w.End) {
			continue
		}
		if w.HasBreak {
			if !t.Before(w.BreakStart) && t.Before(w.BreakEnd) {
				return Phase{Kind: OnBreak, Name: w.Name, ResumeAt: w.BreakEnd}
			}
			if t.Before(w.BreakStart) {
				return Phase{Kind: InSession, Name: w.Name, PhaseEnd: w.BreakStart}
			}
			return Phase{Kind: InSession, Name: w.Name, PhaseEnd: w.End}
		}
		return Phase{Kind: InSession, Name: w.Name, PhaseEnd: w.End}
	}
	return Phase{Kind: Idle}
}

// NextBoundary returns the next instant at which the phase changes. During a
// session or break that is today's phase end or resume time. When idle it is
// the earliest upcoming window start, scanning today's remainder and then up
// to six following days. ok is false when the timetable is empty: there is
// no boundary and callers must not re-arm.
func NextBoundary(tt *timetable.Store, now time.Time) (time.Time, bool) {
	if tt == nil || tt.Empty() {
		return time.Time{}, false
	}

	switch p := Current(tt, now); p.Kind {
	case InSession:
		return p.PhaseEnd.At(now), true
	case OnBreak:
		return p.ResumeAt.At(now), true
	}

	t := timetable.TimeSpec{Hour: now.Hour(), Minute: now.Minute()}
	for _, w := range tt.Sessions(timetable.DayIndex(now.Weekday())) {
		if t.Before(w.Start) {
			return w.Start.At(now), true
		}
	}
	for offset := 1; offset <= 6; offset++ {
		day := now.AddDate(0, 0, offset)
		if windows := tt.Sessions(timetable.DayIndex(day.Weekday())); len(windows) > 0 {
			return windows[0].Start.At(day), true
		}
	}
	// Windows exist but only on today's weekday: wrap to the same day next week.
	if windows := tt.Sessions(timetable.DayIndex(now.Weekday())); len(windows) > 0 {
		return windows[0].Start.At(now.AddDate(0, 0, 7)), true
	}
	return time.Time{}, false
}
