// Package provision implements the idempotent create-if-missing policy and
// the step sequencing used to bring the database stack up and down.
package provision

import (
	"context"
	"log/slog"
	"time"
)

// Kind identifies a class of managed resource.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindVolume    Kind = "volume"
	KindContainer Kind = "container"
	KindImage     Kind = "image"
	KindRole      Kind = "role"
	KindDatabase  Kind = "database"
)

// Outcome reports what Ensure did.
type Outcome string

const (
	Created        Outcome = "created"
	AlreadyPresent Outcome = "already_present"
)

// Checker answers whether a resource currently exists. Implementations must
// not mutate state, and must return an error only when the resource manager
// itself is unreachable.
type Checker interface {
	Exists(ctx context.Context, kind Kind, name string) (bool, error)
}

// ContainerEngine is the subset of the engine needed for container
// replacement.
type ContainerEngine interface {
	ContainerExists(ctx context.Context, name string) (bool, error)
	ContainerImage(ctx context.Context, name string) (string, error)
	StopContainer(ctx context.Context, name string, gracePeriod time.Duration) error
	RemoveContainer(ctx context.Context, name string) error
}

// Provisioner applies the create-if-missing policy against a Checker.
type Provisioner struct {
	checker Checker
	logger  *slog.Logger
}

func NewProvisioner(checker Checker, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		checker: checker,
		logger:  logger.With("component", "provisioner"),
	}
}

// Ensure creates the resource only if it does not already exist. An existing
// resource is left untouched; createFn runs at most once per call.
func (p *Provisioner) Ensure(ctx context.Context, kind Kind, name string, createFn func(context.Context) error) (Outcome, error) {
	exists, err := p.checker.Exists(ctx, kind, name)
	if err != nil {
		return "", &ProbeError{Kind: kind, Name: name, Err: err}
	}
	if exists {
		p.logger.Info("resource already present", "kind", kind, "name", name)
		return AlreadyPresent, nil
	}

	p.logger.Info("creating resource", "kind", kind, "name", name)
	if err := createFn(ctx); err != nil {
		return "", &CreateError{Kind: kind, Name: name, Err: err}
	}
	return Created, nil
}

// ReplaceContainer stops and removes an existing container of the same name
// before creating a new one. This policy is only ever used for service
// containers; volumes hold durable state and are never replaced.
func (p *Provisioner) ReplaceContainer(ctx context.Context, eng ContainerEngine, name string, gracePeriod time.Duration, createFn func(context.Context) error) error {
	exists, err := eng.ContainerExists(ctx, name)
	if err != nil {
		return &ProbeError{Kind: KindContainer, Name: name, Err: err}
	}
	if exists {
		oldImage, err := eng.ContainerImage(ctx, name)
		if err != nil {
			return &ProbeError{Kind: KindContainer, Name: name, Err: err}
		}
		p.logger.Info("replacing existing container", "container", name, "old_image", oldImage)
		if err := eng.StopContainer(ctx, name, gracePeriod); err != nil {
			return &CreateError{Kind: KindContainer, Name: name, Err: err}
		}
		if err := eng.RemoveContainer(ctx, name); err != nil {
			return &CreateError{Kind: KindContainer, Name: name, Err: err}
		}
	}

	if err := createFn(ctx); err != nil {
		return &CreateError{Kind: KindContainer, Name: name, Err: err}
	}
	return nil
}
