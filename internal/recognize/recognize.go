// Package recognize defines the abstract identity-recognition capability the
// session engine consumes. Camera handling and the recognition model live in
// an external process; this package only sees candidate/confidence pairs.
package recognize

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the recognizer (camera or model) is not ready.
// Session starts fail with it and the scheduler retries on its next
// reconcile rather than immediately.
var ErrUnavailable = errors.New("recognizer unavailable")

// Candidate is one identity match from a single frame. Lower confidence is a
// better match (LBPH-style distance).
type Candidate struct {
	Serial     int     `json:"serial"`
	Confidence float64 `json:"confidence"`
}

// Source yields recognition results. One Identify call pulls a frame and
// returns zero or more candidates; it must honor ctx so callers can bound
// the pull with a deadline.
type Source interface {
	Identify(ctx context.Context) ([]Candidate, error)
	Close() error
}

// Factory opens a Source. Exclusive ownership: at most one open Source pulls
// from the camera at a time, which the trigger scheduler guarantees.
type Factory func() (Source, error)
