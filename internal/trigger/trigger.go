// Package trigger keeps attendance recording aligned with the timetable.
// The scheduler is stateless in the re-arming sense: every Reconcile call
// re-derives truth from the phase resolver instead of trusting a previously
// scheduled action, so missed ticks, sleep/suspend, and clock skew are
// self-correcting.
package trigger

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"sync"
	"time"

	"github.com/norm/attend-daemon/internal/ledger"
	logpkg "github.com/norm/attend-daemon/internal/log"
	"github.com/norm/attend-daemon/internal/phase"
	"github.com/norm/attend-daemon/internal/recognize"
	"github.com/norm/attend-daemon/internal/session"
	"github.com/norm/attend-daemon/internal/timetable"
)

// ErrNoActiveSession rejects a manual trigger outside an in-session phase.
var ErrNoActiveSession = errors.New("no active session")

// ErrNoTimetable rejects operations before any timetable has been loaded.
var ErrNoTimetable = errors.New("no timetable loaded")

// Options wires the scheduler's collaborators.
type Options struct {
	Ledger    *ledger.Store
	Factory   recognize.Factory
	Directory session.Directory
	Logger    *logpkg.EventLog

	Session     session.Config
	PullTimeout time.Duration
	// BoundaryGrace is the epsilon added when re-arming at a phase end, so
	// the re-check lands just past the boundary.
	BoundaryGrace time.Duration
}

// Scheduler orchestrates session engines against the timetable. At most one
// engine runs at a time: the recognizer capability cannot be shared.
type Scheduler struct {
	opts   Options
	events chan session.Event

	mu        sync.Mutex
	store     *timetable.Store
	engine    *session.Engine
	cancelRun context.CancelFunc
	timer     *time.Timer
	nextCheck time.Time
}

// New creates a dormant scheduler. It does nothing until LoadSchedule or
// Reconcile is called.
func New(opts Options) *Scheduler {
	if opts.BoundaryGrace <= 0 {
		opts.BoundaryGrace = 2 * time.Second
	}
	return &Scheduler{
		opts:   opts,
		events: make(chan session.Event, 64),
	}
}

// Events returns the lifecycle event stream for host display.
func (s *Scheduler) Events() <-chan session.Event {
	return s.events
}

// LoadSchedule replaces the timetable snapshot from a CSV file. On a parse
// failure the previous timetable stays active and the error surfaces to the
// caller. A successful load immediately reconciles, which also wakes a
// dormant scheduler.
func (s *Scheduler) LoadSchedule(path string) error {
	tt, err := timetable.LoadFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.store = tt
	s.mu.Unlock()

	s.logEvent(logpkg.NewEvent(logpkg.EventTypeScheduleLoaded, "").
		WithCount(tt.Len()).WithDetail(path))
	s.Reconcile(time.Now())
	return nil
}

// Snapshot returns the current timetable snapshot, or nil before any load.
func (s *Scheduler) Snapshot() *timetable.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Status reports the phase at now as a human-readable line.
func (s *Scheduler) Status(now time.Time) string {
	return phase.Current(s.Snapshot(), now).Status()
}

// Reconcile re-derives what should be happening at now and makes it so:
// start a session during an in-session phase, cancel during a break, stay
// quiet while idle. It then arms a fresh re-check at the next boundary.
// With an empty timetable it does not re-arm; the scheduler stays dormant
// until LoadSchedule runs again.
func (s *Scheduler) Reconcile(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	if s.store == nil {
		return
	}

	p := phase.Current(s.store, now)
	s.logEvent(logpkg.NewEvent(logpkg.EventTypeReconcile, p.Name).WithDetail(p.Kind.String()))

	switch p.Kind {
	case phase.InSession:
		if s.runningLocked() && s.engine.Label() != p.Name {
			// A stale engine from a previous phase is still up, which can
			// happen after suspend. Replace it with this phase's session.
			s.cancelRunLocked(now)
		}
		if !s.runningLocked() {
			if err := s.startLocked(now, p); err != nil {
				stdlog.Printf("trigger: session start failed: %v", err)
			}
		}
		s.armLocked(p.PhaseEnd.At(now).Add(s.opts.BoundaryGrace))

	case phase.OnBreak:
		// A break always ends the phase's recording.
		s.cancelRunLocked(now)
		s.armLocked(p.ResumeAt.At(now))

	case phase.Idle:
		// A session that outlived its window (clock skew, suspend) is stale.
		s.cancelRunLocked(now)
		if boundary, ok := phase.NextBoundary(s.store, now); ok {
			s.armLocked(boundary)
		}
	}
}

// ManualTrigger starts a capture for the session in progress at now. It
// behaves exactly like an auto-triggered in-session reconcile and fails with
// ErrNoActiveSession outside one.
func (s *Scheduler) ManualTrigger(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return fmt.Errorf("%w: %v", ErrNoActiveSession, ErrNoTimetable)
	}
	p := phase.Current(s.store, now)
	if p.Kind != phase.InSession {
		return ErrNoActiveSession
	}

	s.logEvent(logpkg.NewEvent(logpkg.EventTypeManualTrigger, p.Name))
	if s.runningLocked() {
		return nil
	}
	if err := s.startLocked(now, p); err != nil {
		return err
	}
	s.armLocked(p.PhaseEnd.At(now).Add(s.opts.BoundaryGrace))
	return nil
}

// Stop cancels any running session and disarms the re-check timer. The
// cancelled engine still flushes its duration summary.
func (s *Scheduler) Stop(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.cancelRunLocked(now)
}

// NextCheck returns when the next automatic reconcile is armed for, zero
// when dormant.
func (s *Scheduler) NextCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCheck
}

// Running reports whether a session engine is currently recording.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scheduler) runningLocked() bool {
	return s.engine != nil && s.engine.State() == session.StateRunning
}

// startLocked opens the recognizer and the day's ledger and launches one
// engine worker. Acquisition failures surface synchronously: no session is
// created and the next reconcile retries at the same boundary.
func (s *Scheduler) startLocked(now time.Time, p phase.Phase) error {
	src, err := s.opts.Factory()
	if err != nil {
		s.logEvent(logpkg.NewEvent(logpkg.EventTypeRecognizerError, p.Name).WithError(err.Error()))
		return fmt.Errorf("open recognizer: %w", err)
	}

	daily, err := s.opts.Ledger.Open(now)
	if err != nil {
		src.Close()
		s.logEvent(logpkg.NewEvent(logpkg.EventTypeLedgerError, p.Name).WithError(err.Error()))
		return fmt.Errorf("open ledger: %w", err)
	}

	eng := session.New(s.opts.Session, daily, s.events, s.opts.Logger)
	budget := p.PhaseEnd.At(now).Sub(now)
	if err := eng.Start(now, budget, p.Name); err != nil {
		src.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.engine = eng
	s.cancelRun = cancel

	go func() {
		defer src.Close()
		eng.Run(ctx, src, s.opts.Directory, s.opts.PullTimeout)
	}()

	stdlog.Printf("trigger: session %q started, budget %s", p.Name, budget.Truncate(time.Second))
	return nil
}

func (s *Scheduler) cancelRunLocked(now time.Time) {
	if s.engine == nil {
		return
	}
	if s.engine.State() == session.StateRunning {
		s.engine.Cancel(now)
	}
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.engine = nil
}

// armLocked schedules a fresh Reconcile at the given instant. The callback
// re-derives everything; nothing from this invocation is carried over.
func (s *Scheduler) armLocked(at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.nextCheck = at
	s.timer = time.AfterFunc(delay, func() {
		s.Reconcile(time.Now())
	})
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextCheck = time.Time{}
}

func (s *Scheduler) logEvent(evt logpkg.Event) {
	if s.opts.Logger == nil {
		return
	}
	_ = s.opts.Logger.Log(evt)
}
