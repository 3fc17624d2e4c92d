package log

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventVersion is the current attendance event schema version.
const EventVersion = 1

// Event captures one attendance-daemon activity record.
type Event struct {
	Version     int    `json:"v"`        // Schema version, always 1
	TimestampMs int64  `json:"ts_ms"`    // Unix milliseconds
	EventID     string `json:"event_id"` // "evt-abc123"
	Type        string `json:"type"`     // "session_started", "presence_confirmed", ...
	Session     string `json:"session,omitempty"`  // Timetable session label
	Identity    string `json:"identity,omitempty"` // Committed identity, if applicable

	// Extended fields for debugging
	Detail    string `json:"detail,omitempty"`     // Free-form context
	Error     string `json:"error,omitempty"`      // Error message if applicable
	Count     int    `json:"count,omitempty"`      // Count for batch operations
	DurationS int    `json:"duration_s,omitempty"` // Duration in whole seconds
}

// WithIdentity sets the identity the event refers to.
func (e Event) WithIdentity(identity string) Event {
	e.Identity = identity
	return e
}

// WithError sets the error field.
func (e Event) WithError(err string) Event {
	e.Error = err
	return e
}

// WithDetail sets the free-form detail field.
func (e Event) WithDetail(detail string) Event {
	e.Detail = detail
	return e
}

// WithCount sets the count field for batch operations.
func (e Event) WithCount(count int) Event {
	e.Count = count
	return e
}

// WithDuration sets the duration field in whole seconds.
func (e Event) WithDuration(seconds int) Event {
	e.DurationS = seconds
	return e
}

// EventType constants for the attendance event stream.
const (
	EventTypeScheduleLoaded    = "schedule_loaded"
	EventTypeTimetableChanged  = "timetable_changed"
	EventTypeReconcile         = "reconcile"
	EventTypeSessionStarted    = "session_started"
	EventTypePresenceConfirmed = "presence_confirmed"
	EventTypeSessionEnded      = "session_ended"
	EventTypeSessionCancelled  = "session_cancelled"
	EventTypeManualTrigger     = "manual_trigger"
	EventTypeRecognizerError   = "recognizer_error"
	EventTypeLedgerError       = "ledger_error"
)

// GenerateEventID returns an evt- prefixed 8-hex identifier.
func GenerateEventID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		n := time.Now().UnixNano()
		buf[0] = byte(n)
		buf[1] = byte(n >> 8)
		buf[2] = byte(n >> 16)
		buf[3] = byte(n >> 24)
	}
	return "evt-" + hex.EncodeToString(buf)
}

// NewEvent creates a new event with schema defaults.
func NewEvent(eventType, session string) Event {
	return Event{
		Version:     EventVersion,
		TimestampMs: time.Now().UnixMilli(),
		EventID:     GenerateEventID(),
		Type:        eventType,
		Session:     session,
	}
}

// EventLog writes append-only JSONL logs.
type EventLog struct {
	path string
	mu   sync.Mutex
}

func NewEventLog(logDir string) *EventLog {
	return &EventLog{path: filepath.Join(logDir, "events.jsonl")}
}

func (l *EventLog) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Version == 0 {
		event.Version = EventVersion
	}
	if event.TimestampMs == 0 {
		event.TimestampMs = time.Now().UnixMilli()
	}
	if event.EventID == "" {
		event.EventID = GenerateEventID()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return err
	}

	return nil
}
