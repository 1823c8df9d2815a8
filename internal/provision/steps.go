package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/agent-matrix/matrixhub-db/internal/events"
)

// Step is one named operation in a provisioning sequence. Every step except
// the health wait is expected to be idempotent, so a failed sequence can be
// re-run from the top.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes a fixed, linear step list with fail-fast semantics.
type Runner struct {
	emitter *events.Emitter
	logger  *slog.Logger
	out     io.Writer
}

func NewRunner(emitter *events.Emitter, logger *slog.Logger, out io.Writer) *Runner {
	return &Runner{
		emitter: emitter,
		logger:  logger.With("component", "runner"),
		out:     out,
	}
}

// Run executes steps in order and stops at the first failure. Resources
// created by earlier steps are left in place; re-running the sequence is safe.
func (r *Runner) Run(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		fmt.Fprintf(r.out, "==> %s\n", step.Name)
		r.emitter.Emit(events.Event{Type: events.StepStarted, Resource: step.Name})

		if err := step.Run(ctx); err != nil {
			fmt.Fprintf(r.out, "    FAIL %s\n", step.Name)
			r.emitter.Emit(events.Event{
				Type:     events.StepFailed,
				Resource: step.Name,
				Fields:   map[string]string{"error": err.Error()},
			})
			return fmt.Errorf("step %q: %w", step.Name, err)
		}

		fmt.Fprintf(r.out, "    ok %s\n", step.Name)
		r.emitter.Emit(events.Event{Type: events.StepOK, Resource: step.Name})
	}
	return nil
}
