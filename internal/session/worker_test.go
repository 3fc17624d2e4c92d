package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/norm/attend-daemon/internal/recognize"
)

// scriptedSource replays a fixed sequence of frames and then blocks until
// the pull context expires.
type scriptedSource struct {
	mu     sync.Mutex
	frames [][]recognize.Candidate
	closed bool
}

func (s *scriptedSource) Identify(ctx context.Context) ([]recognize.Candidate, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		frame := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return frame, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type mapDirectory map[int][2]string

func (m mapDirectory) Lookup(serial int) (string, string, bool) {
	e, ok := m[serial]
	return e[0], e[1], ok
}

func TestRunStopsAtBudget(t *testing.T) {
	led := newFakeLedger()
	e := New(DefaultConfig(), led, nil, nil)
	if err := e.Start(time.Now(), 150*time.Millisecond, "Maths"); err != nil {
		t.Fatalf("start: %v", err)
	}

	src := &scriptedSource{}
	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), src, mapDirectory{}, 20*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop at the budget")
	}
	if e.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", e.State())
	}
	if len(led.summaries) != 1 {
		t.Fatalf("expected one duration trailer, got %d", len(led.summaries))
	}
}

func TestRunObservesKnownCandidatesOnly(t *testing.T) {
	led := newFakeLedger()
	cfg := Config{MaxDistance: 70, MinPresent: time.Nanosecond}
	e := New(cfg, led, nil, nil)
	if err := e.Start(time.Now(), 300*time.Millisecond, "Maths"); err != nil {
		t.Fatalf("start: %v", err)
	}

	src := &scriptedSource{frames: [][]recognize.Candidate{
		{{Serial: 1, Confidence: 40}, {Serial: 99, Confidence: 10}},
		{}, // frame with no faces
		{{Serial: 1, Confidence: 42}},
	}}
	dir := mapDirectory{1: {"1234567", "Ada Lovelace"}}

	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), src, dir, 20*time.Millisecond)
		close(done)
	}()
	<-done

	if len(led.commits) != 1 || led.commits[0] != "1234567" {
		t.Fatalf("commits = %v, want only the enrolled identity", led.commits)
	}
}

func TestRunReturnsOnExternalCancel(t *testing.T) {
	led := newFakeLedger()
	e := New(DefaultConfig(), led, nil, nil)
	if err := e.Start(time.Now(), time.Hour, "Maths"); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{}
	done := make(chan struct{})
	go func() {
		e.Run(ctx, src, mapDirectory{}, 20*time.Millisecond)
		close(done)
	}()

	// The scheduler's cancel path: terminal transition first, then context.
	e.Cancel(time.Now())
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return after cancel")
	}
	if e.State() != StateCancelled {
		t.Fatalf("state = %v, want cancelled", e.State())
	}
}
