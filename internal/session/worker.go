package session

import (
	"context"
	stdlog "log"
	"time"

	logpkg "github.com/norm/attend-daemon/internal/log"
	"github.com/norm/attend-daemon/internal/recognize"
)

// Directory resolves recognizer candidate serials to enrolled identities.
type Directory interface {
	Lookup(serial int) (identity, displayName string, ok bool)
}

// Run pulls frames from src and feeds observations into the engine until the
// budget elapses or ctx is cancelled. Each pull carries its own deadline so
// a blocked source can never outlive the session budget. Run never blocks
// the caller's goroutine; the trigger scheduler spawns it as a worker.
//
// Per-observation failures are absorbed and logged. Run returns once the
// engine is in a terminal state.
func (e *Engine) Run(ctx context.Context, src recognize.Source, dir Directory, pullTimeout time.Duration) {
	if pullTimeout <= 0 {
		pullTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithDeadline(ctx, e.Deadline())
	defer cancel()

	for {
		if e.Tick(time.Now()) {
			return
		}

		pullCtx, pullCancel := context.WithTimeout(ctx, pullTimeout)
		candidates, err := src.Identify(pullCtx)
		timedOut := pullCtx.Err() != nil
		pullCancel()

		if ctx.Err() != nil {
			// Budget deadline reached or the scheduler cancelled us. Tick
			// settles a deadline expiry; an external cancel has already
			// moved the engine to a terminal state.
			e.Tick(time.Now())
			return
		}
		if err != nil {
			// A pull that ran out its own deadline is just cadence; a
			// source error is worth logging.
			if !timedOut {
				stdlog.Printf("session %q: identify failed: %v", e.Label(), err)
				e.logEvent(logpkg.NewEvent(logpkg.EventTypeRecognizerError, e.Label()).
					WithError(err.Error()))
			}
			continue
		}

		now := time.Now()
		for _, c := range candidates {
			identity, displayName, ok := dir.Lookup(c.Serial)
			if !ok {
				// Candidate the roster does not know: never committed.
				stdlog.Printf("session %q: unenrolled candidate serial %d", e.Label(), c.Serial)
				continue
			}
			e.Observe(identity, displayName, c.Confidence, now)
		}
	}
}
