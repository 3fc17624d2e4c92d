// Package ledger persists confirmed attendance as append-only per-date CSV
// files. Each file carries an ID,NAME,DATE,TIME header written exactly once,
// presence rows in append order, and one ID,DURATION_SECONDS trailer block
// per concluded session. The at-most-one-presence-row-per-identity-per-day
// guarantee is enforced here, seeded from on-disk state so it survives
// restarts.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// DateFormat is the calendar date key used for file names and rows.
const DateFormat = "2006-01-02"

var presenceHeader = []string{"ID", "NAME", "DATE", "TIME"}
var durationHeader = []string{"ID", "DURATION_SECONDS"}

// WriteError wraps a storage failure. Commits that fail with a WriteError
// are not recorded as seen and are safe to retry.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DurationEntry is one row of a session's duration trailer.
type DurationEntry struct {
	Identity string
	Seconds  int
}

// Store manages the per-date ledgers under a single directory. Handles are
// cached per date key so every writer for a date shares one lock.
type Store struct {
	dir string

	mu   sync.Mutex
	open map[string]*Daily
}

// NewStore creates a ledger store rooted at dir. The directory is created
// lazily on first open.
func NewStore(dir string) *Store {
	return &Store{dir: dir, open: make(map[string]*Daily)}
}

// Open returns the ledger for date's calendar day, creating the file with
// its header if needed. Open is idempotent; repeated calls for the same date
// return the same handle.
func (s *Store) Open(date time.Time) (*Daily, error) {
	key := date.Format(DateFormat)

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.open[key]; ok {
		return d, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, &WriteError{Path: s.dir, Err: err}
	}

	d := &Daily{
		path: filepath.Join(s.dir, "Attendance_"+key+".csv"),
		date: key,
		seen: make(map[string]struct{}),
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	s.open[key] = d
	return d, nil
}

// Daily is the append-only ledger for one calendar date.
type Daily struct {
	path string
	date string

	mu   sync.Mutex
	seen map[string]struct{}
}

// Date returns the ledger's date key (YYYY-MM-DD).
func (d *Daily) Date() string { return d.date }

// init writes the header for a fresh file, or rebuilds the seen set from
// rows already on disk.
func (d *Daily) init() error {
	f, err := os.Open(d.path)
	if os.IsNotExist(err) {
		return d.appendRecords([][]string{presenceHeader})
	}
	if err != nil {
		return &WriteError{Path: d.path, Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &WriteError{Path: d.path, Err: err}
		}
		// Presence rows have four fields; header and trailer rows do not
		// carry identities we need to remember.
		if len(record) == 4 && record[0] != presenceHeader[0] {
			d.seen[record[0]] = struct{}{}
		}
	}
}

// TryCommitPresence appends a presence row for identity unless one already
// exists for this date. It returns (true, nil) when the row was written,
// (false, nil) when the identity was already present, and (false, error) on
// storage failure — in which case nothing was recorded and the commit may be
// retried.
func (d *Daily) TryCommitPresence(identity, displayName string, firstSeen time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[identity]; ok {
		return false, nil
	}
	row := []string{identity, displayName, d.date, firstSeen.Format("15:04:05")}
	if err := d.appendRecords([][]string{row}); err != nil {
		return false, err
	}
	d.seen[identity] = struct{}{}
	return true, nil
}

// AppendDurationSummary appends one trailer block: a blank separator line,
// the duration header, and a row per entry. Trailers are session-scoped and
// never deduplicated; a day with several sessions gets several trailers.
func (d *Daily) AppendDurationSummary(entries []DurationEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	records := [][]string{{}, durationHeader}
	for _, e := range entries {
		records = append(records, []string{e.Identity, strconv.Itoa(e.Seconds)})
	}
	return d.appendRecords(records)
}

// appendRecords writes records to the end of the file in one open/flush
// cycle. A zero-field record becomes a blank separator line.
func (d *Daily) appendRecords(records [][]string) error {
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteError{Path: d.path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, record := range records {
		if len(record) == 0 {
			w.Flush()
			if _, err := f.WriteString("\n"); err != nil {
				return &WriteError{Path: d.path, Err: err}
			}
			continue
		}
		if err := w.Write(record); err != nil {
			return &WriteError{Path: d.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &WriteError{Path: d.path, Err: err}
	}
	return nil
}
