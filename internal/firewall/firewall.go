// Package firewall opens and closes host firewall access to the database
// port via ufw.
package firewall

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner executes a host command. Wrapped so tests can fake ufw.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Manager drives the host firewall.
type Manager struct {
	runner CommandRunner
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{runner: execRunner{}, logger: logger.With("component", "firewall")}
}

// Available reports whether ufw is installed and responding.
func (m *Manager) Available(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "ufw", "status"); err != nil {
		return fmt.Errorf("ufw unavailable: %w", err)
	}
	return nil
}

// OpenPort allows TCP traffic to the given port, optionally restricted to a
// source CIDR. ufw treats a duplicate rule as a no-op, keeping this
// idempotent.
func (m *Manager) OpenPort(ctx context.Context, port int, sourceCIDR string) error {
	args := allowArgs(port, sourceCIDR)
	m.logger.Info("opening firewall port", "port", port, "source", sourceCIDR)
	if out, err := m.runner.Run(ctx, "ufw", args...); err != nil {
		return fmt.Errorf("ufw allow port %d: %w: %s", port, err, strings.TrimSpace(out))
	}
	return nil
}

// ClosePort removes the allow rule. A missing rule is a no-op.
func (m *Manager) ClosePort(ctx context.Context, port int, sourceCIDR string) error {
	args := append([]string{"delete"}, allowArgs(port, sourceCIDR)...)
	m.logger.Info("closing firewall port", "port", port, "source", sourceCIDR)
	if out, err := m.runner.Run(ctx, "ufw", args...); err != nil {
		if strings.Contains(out, "Could not delete non-existent rule") {
			return nil
		}
		return fmt.Errorf("ufw delete port %d: %w: %s", port, err, strings.TrimSpace(out))
	}
	return nil
}

func allowArgs(port int, sourceCIDR string) []string {
	p := strconv.Itoa(port)
	if sourceCIDR == "" {
		return []string{"allow", p + "/tcp"}
	}
	return []string{"allow", "from", sourceCIDR, "to", "any", "port", p, "proto", "tcp"}
}
