package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agent-matrix/matrixhub-db/internal/events"
)

func TestWaitHealthySucceedsOnThirdPoll(t *testing.T) {
	calls := 0
	probe := func(context.Context) error {
		calls++
		if calls >= 3 {
			return nil
		}
		return errors.New("starting up")
	}

	emitter := events.NewEmitter(testLogger())
	err := WaitHealthy(context.Background(), probe, time.Millisecond, 120, emitter, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("probe called %d times, want exactly 3", calls)
	}
}

func TestWaitHealthyTimesOutAfterMaxAttempts(t *testing.T) {
	calls := 0
	probe := func(context.Context) error {
		calls++
		return errors.New("never ready")
	}

	emitter := events.NewEmitter(testLogger())
	err := WaitHealthy(context.Background(), probe, time.Microsecond, 120, emitter, testLogger())
	var hte *HealthTimeoutError
	if !errors.As(err, &hte) {
		t.Fatalf("error = %v, want HealthTimeoutError", err)
	}
	if hte.Attempts != 120 {
		t.Errorf("attempts = %d, want 120", hte.Attempts)
	}
	if calls != 120 {
		t.Errorf("probe called %d times, want exactly 120", calls)
	}
}

func TestWaitHealthyFirstPollSuccess(t *testing.T) {
	calls := 0
	probe := func(context.Context) error {
		calls++
		return nil
	}
	emitter := events.NewEmitter(testLogger())
	if err := WaitHealthy(context.Background(), probe, time.Hour, 5, emitter, testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("probe called %d times, want 1", calls)
	}
}

func TestWaitHealthyContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe := func(context.Context) error {
		cancel()
		return errors.New("not yet")
	}
	emitter := events.NewEmitter(testLogger())
	err := WaitHealthy(ctx, probe, time.Hour, 5, emitter, testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
