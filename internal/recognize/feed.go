package recognize

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// frameLine is the JSONL schema the external recognizer process appends to
// the feed file, one line per processed frame.
type frameLine struct {
	Candidates []Candidate `json:"candidates"`
}

// FeedSource tails a JSONL feed file written by the external recognizer
// process. Only lines appended after the source is opened are delivered, so
// a stale feed never replays old frames into a new session.
type FeedSource struct {
	path    string
	f       *os.File
	r       *bufio.Reader
	poll    time.Duration
	partial []byte
}

// NewFeedSource opens the feed for tailing. A missing feed file means the
// recognizer side is not running and is reported as ErrUnavailable.
func NewFeedSource(path string, poll time.Duration) (*FeedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open feed %s: %v", ErrUnavailable, path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seek feed %s: %v", ErrUnavailable, path, err)
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &FeedSource{path: path, f: f, r: bufio.NewReader(f), poll: poll}, nil
}

// Identify blocks until the feed yields one complete frame line or ctx is
// done. Unparseable lines are skipped with a log line rather than failing
// the session.
func (s *FeedSource) Identify(ctx context.Context) ([]Candidate, error) {
	for {
		line, err := s.r.ReadString('\n')
		if err == nil {
			full := string(s.partial) + line
			s.partial = nil
			cands, ok := parseFrame(full)
			if !ok {
				log.Printf("recognize: skipping malformed feed line")
				continue
			}
			return cands, nil
		}
		if err != io.EOF {
			return nil, fmt.Errorf("read feed %s: %w", s.path, err)
		}
		// Partial line at EOF: stash it and wait for the writer to finish.
		if line != "" {
			s.partial = append(s.partial, line...)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

func (s *FeedSource) Close() error { return s.f.Close() }

func parseFrame(line string) ([]Candidate, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, true
	}
	var frame frameLine
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		return nil, false
	}
	return frame.Candidates, true
}
