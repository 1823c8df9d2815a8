package metrics

import (
	"log/slog"
	"os"
	"testing"

	"github.com/agent-matrix/matrixhub-db/internal/events"
)

func TestNewMetricsNoPanic(t *testing.T) {
	// Handler() should return without panic (metrics already registered in init)
	h := Handler()
	if h == nil {
		t.Error("expected non-nil handler")
	}
}

func TestRegisterEventHandlerUpdatesCounters(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	emitter := events.NewEmitter(logger)
	RegisterEventHandler(emitter)

	// These should not panic and should update metrics
	emitter.Emit(events.Event{Type: events.ResourceCreated, Resource: "matrixnet", Fields: map[string]string{"kind": "network"}})
	emitter.Emit(events.Event{Type: events.ResourceReused, Resource: "matrixnet", Fields: map[string]string{"kind": "network"}})
	emitter.Emit(events.Event{Type: events.StepFailed, Resource: "wait_for_healthy"})
	emitter.Emit(events.Event{Type: events.HealthWaiting})
	emitter.Emit(events.Event{Type: events.HealthReady})
	emitter.Emit(events.Event{Type: events.HealthTimeout})
	emitter.Emit(events.Event{Type: events.BackupCompleted})
	emitter.Emit(events.Event{Type: events.BackupFailed})
}
