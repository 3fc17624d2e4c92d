// Package session runs one bounded attendance-recording session: it consumes
// recognition observations, applies the confidence and dwell gates, commits
// confirmed presences through the ledger, and flushes a duration summary
// exactly once when the session leaves Running.
package session

import (
	"errors"
	stdlog "log"
	"strconv"
	"sync"
	"time"

	"github.com/norm/attend-daemon/internal/ledger"
	logpkg "github.com/norm/attend-daemon/internal/log"
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// ErrNotIdle is returned when Start is called on an engine that already ran.
var ErrNotIdle = errors.New("session: engine is not idle")

// EventType identifies a lifecycle event delivered to the host.
type EventType string

const (
	EventStarted           EventType = "session_started"
	EventPresenceConfirmed EventType = "presence_confirmed"
	EventEnded             EventType = "session_ended"
)

// Event is a lifecycle notification for host display. PresenceConfirmed
// events carry the identity fields; Ended events carry the per-identity
// duration map and whether the session was cancelled.
type Event struct {
	Type        EventType
	Label       string
	Identity    string
	DisplayName string
	FirstSeenAt time.Time
	Durations   map[string]int
	Cancelled   bool
}

// Ledger is the subset of the daily ledger the engine writes through.
type Ledger interface {
	TryCommitPresence(identity, displayName string, firstSeen time.Time) (bool, error)
	AppendDurationSummary(entries []ledger.DurationEntry) error
}

// Config holds the two acceptance gates.
type Config struct {
	// MaxDistance is the confidence gate: lower numeric confidence is a
	// better match, observations above this distance are treated as Unknown.
	MaxDistance float64
	// MinPresent is the dwell gate: an identity must stay recognized this
	// long after its first accepted sighting before presence is committed.
	MinPresent time.Duration
}

// DefaultConfig returns the gates the original recorder shipped with.
func DefaultConfig() Config {
	return Config{MaxDistance: 70, MinPresent: 10 * time.Second}
}

// Engine is the attendance session state machine. All methods are safe for
// concurrent use; Cancel may race with an in-flight Observe.
type Engine struct {
	cfg    Config
	ledger Ledger
	events chan<- Event
	logger *logpkg.EventLog

	mu        sync.Mutex
	state     State
	label     string
	budget    time.Duration
	startedAt time.Time
	firstSeen map[string]time.Time
	names     map[string]string
	confirmed map[string]struct{}
	unknown   int
}

// New creates an idle engine. events may be nil when the host does not
// consume lifecycle notifications; logger may be nil in tests.
func New(cfg Config, l Ledger, events chan<- Event, logger *logpkg.EventLog) *Engine {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultConfig().MaxDistance
	}
	if cfg.MinPresent <= 0 {
		cfg.MinPresent = DefaultConfig().MinPresent
	}
	return &Engine{cfg: cfg, ledger: l, events: events, logger: logger}
}

// Start transitions Idle to Running with a fresh run state. budget is a hard
// ceiling on the session length.
func (e *Engine) Start(now time.Time, budget time.Duration, label string) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrNotIdle
	}
	e.state = StateRunning
	e.label = label
	e.budget = budget
	e.startedAt = now
	e.firstSeen = make(map[string]time.Time)
	e.names = make(map[string]string)
	e.confirmed = make(map[string]struct{})
	e.unknown = 0
	e.mu.Unlock()

	e.logEvent(logpkg.NewEvent(logpkg.EventTypeSessionStarted, label).
		WithDuration(int(budget.Seconds())))
	e.emit(Event{Type: EventStarted, Label: label})
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Label returns the timetable session label this run records for.
func (e *Engine) Label() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.label
}

// Deadline returns the instant the budget expires.
func (e *Engine) Deadline() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startedAt.Add(e.budget)
}

// Observe feeds one recognition observation. It is a no-op unless the engine
// is Running. Observations failing the confidence gate are counted as
// Unknown and change no identity state. The first accepted sighting anchors
// firstSeenAt; the presence is committed once the identity has been seen
// again MinPresent or more after that anchor. Repeated observations after
// confirmation are no-ops.
func (e *Engine) Observe(identity, displayName string, confidence float64, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return
	}
	if confidence > e.cfg.MaxDistance {
		e.unknown++
		return
	}

	first, seen := e.firstSeen[identity]
	if !seen {
		e.firstSeen[identity] = ts
		e.names[identity] = displayName
		return
	}
	if _, done := e.confirmed[identity]; done {
		return
	}
	if ts.Sub(first) < e.cfg.MinPresent {
		return
	}

	committed, err := e.ledger.TryCommitPresence(identity, e.names[identity], first)
	if err != nil {
		// Storage failure: stay unconfirmed so the next qualifying
		// observation retries the commit. The session itself goes on.
		stdlog.Printf("session %q: presence commit for %s failed: %v", e.label, identity, err)
		e.logEvent(logpkg.NewEvent(logpkg.EventTypeLedgerError, e.label).
			WithIdentity(identity).WithError(err.Error()))
		return
	}

	e.confirmed[identity] = struct{}{}
	if !committed {
		// Already on the ledger from an earlier session today. The dwell is
		// still tracked for this session's duration trailer, but the host is
		// not notified a second time.
		return
	}

	e.logEvent(logpkg.NewEvent(logpkg.EventTypePresenceConfirmed, e.label).WithIdentity(identity))
	e.emit(Event{
		Type:        EventPresenceConfirmed,
		Label:       e.label,
		Identity:    identity,
		DisplayName: e.names[identity],
		FirstSeenAt: first,
	})
}

// Tick checks the budget and completes the session once it is spent. It
// returns true when the engine is in a terminal state.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	if e.state != StateRunning {
		done := e.state == StateCompleted || e.state == StateCancelled
		e.mu.Unlock()
		return done
	}
	if now.Sub(e.startedAt) < e.budget {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	e.finish(now, StateCompleted)
	return true
}

// Cancel stops a Running session immediately. Presences already committed
// stand; the duration summary is still flushed, exactly once.
func (e *Engine) Cancel(now time.Time) {
	e.finish(now, StateCancelled)
}

// Unknown returns how many observations failed the confidence gate.
func (e *Engine) Unknown() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unknown
}

// finish performs the one-time Running -> terminal transition: it computes
// per-identity durations for every confirmed identity, appends the ledger
// trailer, and emits the ended event. Calls after the first are no-ops.
func (e *Engine) finish(now time.Time, final State) {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = final
	label := e.label
	durations := make(map[string]int, len(e.confirmed))
	entries := make([]ledger.DurationEntry, 0, len(e.confirmed))
	for identity := range e.confirmed {
		secs := int(now.Sub(e.firstSeen[identity]).Seconds())
		durations[identity] = secs
		entries = append(entries, ledger.DurationEntry{Identity: identity, Seconds: secs})
	}
	unknown := e.unknown
	e.mu.Unlock()

	if err := e.ledger.AppendDurationSummary(entries); err != nil {
		stdlog.Printf("session %q: duration summary failed: %v", label, err)
		e.logEvent(logpkg.NewEvent(logpkg.EventTypeLedgerError, label).WithError(err.Error()))
	}

	endType := logpkg.EventTypeSessionEnded
	if final == StateCancelled {
		endType = logpkg.EventTypeSessionCancelled
	}
	e.logEvent(logpkg.NewEvent(endType, label).
		WithCount(len(entries)).
		WithDetail(detailUnknown(unknown)))
	e.emit(Event{
		Type:      EventEnded,
		Label:     label,
		Durations: durations,
		Cancelled: final == StateCancelled,
	})
}

func detailUnknown(n int) string {
	if n == 0 {
		return ""
	}
	return "unknown_observations=" + strconv.Itoa(n)
}

// emit delivers an event to the host without ever blocking the observation
// path. A full channel drops the event with a log line.
func (e *Engine) emit(ev Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
		stdlog.Printf("session %q: dropping %s event, host channel full", ev.Label, ev.Type)
	}
}

func (e *Engine) logEvent(evt logpkg.Event) {
	if e.logger == nil {
		return
	}
	_ = e.logger.Log(evt)
}
