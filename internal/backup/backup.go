// Package backup produces and restores timestamped dump artifacts by running
// the database's own dump tools inside the container.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agent-matrix/matrixhub-db/internal/events"
)

// Execer runs a command inside a running container.
type Execer interface {
	Exec(ctx context.Context, name string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) (int, error)
}

// Artifact is one dump file in the backup directory.
type Artifact struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Runner drives backups against a named database container.
type Runner struct {
	execer  Execer
	dir     string
	keep    int
	emitter *events.Emitter
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewRunner(execer Execer, dir string, keep int, emitter *events.Emitter, logger *slog.Logger) *Runner {
	return &Runner{
		execer:  execer,
		dir:     dir,
		keep:    keep,
		emitter: emitter,
		logger:  logger.With("component", "backup"),
		now:     time.Now,
	}
}

// Backup dumps the database in custom format to a timestamped file and prunes
// old artifacts. Returns the path of the new artifact.
func (r *Runner) Backup(ctx context.Context, container, db, user string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.dump", db, r.now().UTC().Format("20060102_150405"))
	path := filepath.Join(r.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}

	var stderr strings.Builder
	code, err := r.execer.Exec(ctx, container, []string{"pg_dump", "-U", user, "-Fc", db}, nil, f, &stderr)
	closeErr := f.Close()
	if err == nil && code != 0 {
		err = fmt.Errorf("pg_dump exited %d: %s", code, strings.TrimSpace(stderr.String()))
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		r.emitter.Emit(events.Event{Type: events.BackupFailed, Resource: db, Fields: map[string]string{"error": err.Error()}})
		return "", fmt.Errorf("backup %s: %w", db, err)
	}

	r.logger.Info("backup written", "path", path)
	r.emitter.Emit(events.Event{Type: events.BackupCompleted, Resource: db, Fields: map[string]string{"path": path}})

	if _, err := r.Prune(); err != nil {
		r.logger.Warn("backup pruning failed", "error", err)
	}
	return path, nil
}

// Restore streams a dump artifact through pg_restore inside the container.
func (r *Runner) Restore(ctx context.Context, container, db, user, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	var stderr strings.Builder
	cmd := []string{"pg_restore", "-U", user, "-d", db, "--clean", "--if-exists"}
	code, err := r.execer.Exec(ctx, container, cmd, f, io.Discard, &stderr)
	if err != nil {
		return fmt.Errorf("restore %s: %w", db, err)
	}
	if code != 0 {
		return fmt.Errorf("pg_restore exited %d: %s", code, strings.TrimSpace(stderr.String()))
	}
	r.logger.Info("restore complete", "path", path, "database", db)
	return nil
}

// List returns dump artifacts sorted newest first.
func (r *Runner) List() ([]Artifact, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var artifacts []Artifact
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dump") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Path:    filepath.Join(r.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime.After(artifacts[j].ModTime)
	})
	return artifacts, nil
}

// Prune removes artifacts beyond the retention count, oldest first, and
// returns the removed paths.
func (r *Runner) Prune() ([]string, error) {
	artifacts, err := r.List()
	if err != nil {
		return nil, err
	}
	if len(artifacts) <= r.keep {
		return nil, nil
	}

	var removed []string
	for _, a := range artifacts[r.keep:] {
		if err := os.Remove(a.Path); err != nil {
			return removed, fmt.Errorf("prune %s: %w", a.Path, err)
		}
		r.logger.Info("pruned backup", "path", a.Path)
		removed = append(removed, a.Path)
	}
	return removed, nil
}
