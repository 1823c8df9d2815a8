package provision

import (
	"errors"
	"fmt"
)

// ErrConfirmationDeclined is returned when the operator does not confirm a
// destructive action. Nothing has been changed when this is returned.
var ErrConfirmationDeclined = errors.New("confirmation declined")

// ProbeError means the resource manager itself could not be reached.
// It is distinct from "not found", which existence checks report as false.
type ProbeError struct {
	Kind Kind
	Name string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// CreateError means a resource creation attempt failed.
type CreateError struct {
	Kind Kind
	Name string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("create %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// HealthTimeoutError means the service never reported healthy within the
// polling bound.
type HealthTimeoutError struct {
	Attempts int
	LastErr  error
}

func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("service not healthy after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *HealthTimeoutError) Unwrap() error { return e.LastErr }
