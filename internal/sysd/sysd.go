// Package sysd renders and installs the systemd units that auto-start the
// database stack and run nightly backups.
package sysd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes a host command. Wrapped so tests can fake systemctl.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

const (
	ServiceUnit     = "matrixhub-db.service"
	BackupUnit      = "matrixhub-db-backup.service"
	BackupTimerUnit = "matrixhub-db-backup.timer"
)

// Installer writes unit files and registers them with systemd.
type Installer struct {
	runner  CommandRunner
	unitDir string
	binPath string
	workDir string
	logger  *slog.Logger
}

func NewInstaller(binPath, workDir string, logger *slog.Logger) *Installer {
	return &Installer{
		runner:  execRunner{},
		unitDir: "/etc/systemd/system",
		binPath: binPath,
		workDir: workDir,
		logger:  logger.With("component", "sysd"),
	}
}

func (i *Installer) serviceUnit() string {
	return strings.TrimLeft(fmt.Sprintf(`
[Unit]
Description=MatrixHub Postgres stack
After=docker.service network-online.target
Requires=docker.service

[Service]
Type=oneshot
RemainAfterExit=yes
WorkingDirectory=%s
ExecStart=%s up
ExecStop=%s down
TimeoutStartSec=300

[Install]
WantedBy=multi-user.target
`, i.workDir, i.binPath, i.binPath), "\n")
}

func (i *Installer) backupUnit() string {
	return strings.TrimLeft(fmt.Sprintf(`
[Unit]
Description=MatrixHub Postgres nightly backup
After=%s

[Service]
Type=oneshot
WorkingDirectory=%s
ExecStart=%s backup
`, ServiceUnit, i.workDir, i.binPath), "\n")
}

func (i *Installer) backupTimer() string {
	return strings.TrimLeft(fmt.Sprintf(`
[Unit]
Description=Nightly backup timer for MatrixHub Postgres

[Timer]
OnCalendar=*-*-* 02:30:00
Persistent=true
Unit=%s

[Install]
WantedBy=timers.target
`, BackupUnit), "\n")
}

// Install writes the units and enables the service and timer. Re-running
// overwrites the files and re-enables, which systemd treats as a no-op.
func (i *Installer) Install(ctx context.Context) error {
	units := map[string]string{
		ServiceUnit:     i.serviceUnit(),
		BackupUnit:      i.backupUnit(),
		BackupTimerUnit: i.backupTimer(),
	}
	for name, content := range units {
		path := filepath.Join(i.unitDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write unit %s: %w", name, err)
		}
		i.logger.Info("unit written", "unit", name)
	}

	if out, err := i.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w: %s", err, out)
	}
	for _, unit := range []string{ServiceUnit, BackupTimerUnit} {
		if out, err := i.runner.Run(ctx, "systemctl", "enable", "--now", unit); err != nil {
			return fmt.Errorf("enable %s: %w: %s", unit, err, out)
		}
		i.logger.Info("unit enabled", "unit", unit)
	}
	return nil
}

// Remove disables and deletes the units. Missing units are a no-op.
func (i *Installer) Remove(ctx context.Context) error {
	for _, unit := range []string{BackupTimerUnit, ServiceUnit} {
		if out, err := i.runner.Run(ctx, "systemctl", "disable", "--now", unit); err != nil {
			i.logger.Warn("disable unit failed (continuing)", "unit", unit, "error", err, "output", out)
		}
	}
	for _, unit := range []string{ServiceUnit, BackupUnit, BackupTimerUnit} {
		path := filepath.Join(i.unitDir, unit)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove unit %s: %w", unit, err)
		}
	}
	if out, err := i.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w: %s", err, out)
	}
	return nil
}
