package provision

import (
	"context"
	"log/slog"
	"time"

	"github.com/agent-matrix/matrixhub-db/internal/events"
)

// Probe reports whether the service is ready. A nil return means healthy.
type Probe func(ctx context.Context) error

// WaitHealthy polls the probe every interval until it succeeds or maxAttempts
// polls have been made. The probe runs exactly once per attempt; the final
// attempt is not followed by a sleep.
func WaitHealthy(ctx context.Context, probe Probe, interval time.Duration, maxAttempts int, emitter *events.Emitter, logger *slog.Logger) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = probe(ctx)
		if lastErr == nil {
			logger.Info("service healthy", "attempts", attempt)
			emitter.Emit(events.Event{Type: events.HealthReady})
			return nil
		}
		emitter.Emit(events.Event{Type: events.HealthWaiting})

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	emitter.Emit(events.Event{Type: events.HealthTimeout})
	return &HealthTimeoutError{Attempts: maxAttempts, LastErr: lastErr}
}
