// Package timetable loads and queries the weekly session timetable.
//
// The timetable is a CSV with columns Day, SessionName, StartTime, EndTime
// and optional BreakStart/BreakEnd. Day is an integer 0 (Monday) through
// 6 (Sunday) or a case-insensitive English weekday name. Times are 24-hour
// "H:MM" or "HH:MM". A loaded Store is an immutable snapshot; reloading is
// a full replacement done by the caller.
package timetable

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// weekdayNames maps lowercase English day names to the 0=Monday..6=Sunday index.
var weekdayNames = map[string]int{
	"monday": 0, "tuesday": 1, "wednesday": 2, "thursday": 3,
	"friday": 4, "saturday": 5, "sunday": 6,
}

// DayIndex converts a time.Weekday (Sunday=0) to the timetable's
// 0=Monday..6=Sunday indexing.
func DayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ParseError reports a malformed timetable row. The load call fails as a
// whole; any previously loaded timetable stays active with the caller.
type ParseError struct {
	Row    int    // 1-based data row number, 0 for header problems
	Column string // offending column, if known
	Reason string
}

func (e *ParseError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("timetable: %s", e.Reason)
	}
	if e.Column != "" {
		return fmt.Sprintf("timetable: row %d, column %s: %s", e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("timetable: row %d: %s", e.Row, e.Reason)
}

// SessionWindow is one timetable row: a named per-day session with an
// optional internal break. HasBreak is true only when both break bounds
// were present in the source.
type SessionWindow struct {
	Weekday    int // 0=Monday .. 6=Sunday
	Name       string
	Start      TimeSpec
	End        TimeSpec
	HasBreak   bool
	BreakStart TimeSpec
	BreakEnd   TimeSpec
}

// Store is an immutable snapshot of the weekly timetable.
type Store struct {
	byDay [7][]SessionWindow
	rows  int
}

// Sessions returns the windows for a weekday (0=Monday..6=Sunday) sorted by
// start time ascending, ties in input order. The returned slice must not be
// modified.
func (s *Store) Sessions(weekday int) []SessionWindow {
	if weekday < 0 || weekday > 6 {
		return nil
	}
	return s.byDay[weekday]
}

// Len returns the total number of session windows in the snapshot.
func (s *Store) Len() int { return s.rows }

// Empty reports whether the timetable has no windows at all.
func (s *Store) Empty() bool { return s.rows == 0 }

// LoadFile loads a timetable CSV from disk.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timetable: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a timetable CSV into a Store. On any malformed row it returns
// a *ParseError and no Store.
func Load(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Reason: "empty file"}
	}
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Day", "StartTime", "EndTime"} {
		if _, ok := cols[required]; !ok {
			return nil, &ParseError{Column: required, Reason: "required column missing"}
		}
	}

	store := &Store{}
	row := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Row: row + 1, Reason: err.Error()}
		}
		row++

		w, perr := parseWindow(record, cols, row)
		if perr != nil {
			return nil, perr
		}
		store.byDay[w.Weekday] = append(store.byDay[w.Weekday], w)
		store.rows++
	}

	for day := range store.byDay {
		windows := store.byDay[day]
		sort.SliceStable(windows, func(i, j int) bool {
			return windows[i].Start.Before(windows[j].Start)
		})
	}
	return store, nil
}

func parseWindow(record []string, cols map[string]int, row int) (SessionWindow, *ParseError) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var w SessionWindow

	day, err := parseDay(field("Day"))
	if err != nil {
		return w, &ParseError{Row: row, Column: "Day", Reason: err.Error()}
	}
	w.Weekday = day
	w.Name = field("SessionName")

	w.Start, err = ParseClock(field("StartTime"))
	if err != nil {
		return w, &ParseError{Row: row, Column: "StartTime", Reason: err.Error()}
	}
	w.End, err = ParseClock(field("EndTime"))
	if err != nil {
		return w, &ParseError{Row: row, Column: "EndTime", Reason: err.Error()}
	}
	if !w.Start.Before(w.End) {
		return w, &ParseError{Row: row, Reason: fmt.Sprintf("start %s must be before end %s", w.Start, w.End)}
	}

	bs, be := field("BreakStart"), field("BreakEnd")
	if (bs == "") != (be == "") {
		return w, &ParseError{Row: row, Reason: "BreakStart and BreakEnd must both be set or both be empty"}
	}
	if bs != "" {
		w.BreakStart, err = ParseClock(bs)
		if err != nil {
			return w, &ParseError{Row: row, Column: "BreakStart", Reason: err.Error()}
		}
		w.BreakEnd, err = ParseClock(be)
		if err != nil {
			return w, &ParseError{Row: row, Column: "BreakEnd", Reason: err.Error()}
		}
		if !w.BreakStart.Before(w.BreakEnd) {
			return w, &ParseError{Row: row, Reason: fmt.Sprintf("break start %s must be before break end %s", w.BreakStart, w.BreakEnd)}
		}
		if w.BreakStart.Before(w.Start) || w.End.Before(w.BreakEnd) {
			return w, &ParseError{Row: row, Reason: "break must lie within the session window"}
		}
		w.HasBreak = true
	}

	return w, nil
}

func parseDay(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty Day value")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("day index %d out of range 0-6", n)
		}
		return n, nil
	}
	if n, ok := weekdayNames[strings.ToLower(s)]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("invalid Day value: %q", s)
}
