package log

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewEventDefaults(t *testing.T) {
	start := time.Now().UnixMilli()
	evt := NewEvent(EventTypePresenceConfirmed, "Maths")

	if evt.Version != EventVersion {
		t.Fatalf("expected version %d, got %d", EventVersion, evt.Version)
	}
	if evt.TimestampMs < start {
		t.Fatalf("expected TimestampMs >= %d, got %d", start, evt.TimestampMs)
	}
	if evt.EventID == "" || !strings.HasPrefix(evt.EventID, "evt-") {
		t.Fatalf("expected evt- prefixed event id, got %q", evt.EventID)
	}
	if evt.Type != EventTypePresenceConfirmed {
		t.Fatalf("expected type %q, got %q", EventTypePresenceConfirmed, evt.Type)
	}
	if evt.Session != "Maths" {
		t.Fatalf("expected session Maths, got %q", evt.Session)
	}
}

func TestEventBuilders(t *testing.T) {
	evt := NewEvent(EventTypeSessionEnded, "Lab").
		WithIdentity("1234567").
		WithCount(3).
		WithDuration(120).
		WithDetail("unknown_observations=2")

	if evt.Identity != "1234567" || evt.Count != 3 || evt.DurationS != 120 {
		t.Fatalf("builder fields not applied: %+v", evt)
	}
	if evt.Detail != "unknown_observations=2" {
		t.Fatalf("detail = %q", evt.Detail)
	}
}

func TestEventLogSchemaFields(t *testing.T) {
	dir := t.TempDir()
	logger := NewEventLog(dir)

	evt := Event{
		Type:     EventTypePresenceConfirmed,
		Session:  "Maths",
		Identity: "1234567",
	}

	if err := logger.Log(evt); err != nil {
		t.Fatalf("log event: %v", err)
	}

	payload, err := os.ReadFile(dir + "/events.jsonl")
	if err != nil {
		t.Fatalf("read events.jsonl: %v", err)
	}
	line := strings.TrimSpace(string(payload))
	if line == "" {
		t.Fatalf("expected one jsonl line")
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}

	// Required schema fields
	for _, key := range []string{"v", "ts_ms", "event_id", "type"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing required field %q in %v", key, got)
		}
	}
	// Optional fields included when set
	for _, key := range []string{"session", "identity"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing expected field %q in %v", key, got)
		}
	}
	// Omitted when empty
	for _, key := range []string{"error", "detail", "count", "duration_s"} {
		if _, ok := got[key]; ok {
			t.Fatalf("unexpected empty field %q present in %v", key, got)
		}
	}

	if v, ok := got["v"].(float64); !ok || int(v) != EventVersion {
		t.Fatalf("expected v=%d, got %v", EventVersion, got["v"])
	}
	if id, ok := got["event_id"].(string); !ok || !strings.HasPrefix(id, "evt-") {
		t.Fatalf("expected evt- prefixed event_id, got %v", got["event_id"])
	}
}

func TestEventLogAppends(t *testing.T) {
	dir := t.TempDir()
	logger := NewEventLog(dir)

	for i := 0; i < 3; i++ {
		if err := logger.Log(NewEvent(EventTypeReconcile, "")); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	payload, err := os.ReadFile(dir + "/events.jsonl")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}
