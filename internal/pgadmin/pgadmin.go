// Package pgadmin performs administrative operations against the running
// database: role and database ensure, readiness pings, and schema checks.
package pgadmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agent-matrix/matrixhub-db/internal/provision"
)

// Admin wraps a pgxpool connection with administrative privileges.
type Admin struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Admin, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Admin{pool: pool, logger: logger.With("component", "pgadmin")}, nil
}

// Close closes the connection pool.
func (a *Admin) Close() {
	a.pool.Close()
}

// Ping reports whether the database accepts connections.
func (a *Admin) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate into DDL.
// Role and database names come from configuration, not user input, but DDL
// cannot use bind parameters so the names are checked before interpolation.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// QuoteLiteral escapes a string for use as a SQL literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// GeneratePassword returns a random password for newly created roles.
func GeneratePassword() string {
	return uuid.NewString()
}

// passwordOrGenerated returns the supplied password, or a generated credential
// when none was given.
func passwordOrGenerated(password string) string {
	if password != "" {
		return password
	}
	return GeneratePassword()
}

// RoleExists checks the system catalog for a role of the given name.
func (a *Admin) RoleExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := a.pool.QueryRow(ctx, `SELECT 1 FROM pg_roles WHERE rolname = $1`, name).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pg_roles: %w", err)
	}
	return true, nil
}

// EnsureRole creates a login role if it does not exist. An existing role is
// left untouched, password included. An empty password gets a generated
// credential, reported through the log.
func (a *Admin) EnsureRole(ctx context.Context, name, password string) (provision.Outcome, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid role name %q", name)
	}

	exists, err := a.RoleExists(ctx, name)
	if err != nil {
		return "", &provision.ProbeError{Kind: provision.KindRole, Name: name, Err: err}
	}
	if exists {
		a.logger.Info("role already present", "role", name)
		return provision.AlreadyPresent, nil
	}

	generated := password == ""
	password = passwordOrGenerated(password)
	if generated {
		// The credential is only ever known here, so it has to be surfaced.
		a.logger.Warn("no password supplied for new role, generated one",
			"role", name, "password", password)
	}

	a.logger.Info("creating role", "role", name)
	ddl := fmt.Sprintf(`CREATE ROLE %s LOGIN PASSWORD %s`, name, QuoteLiteral(password))
	if _, err := a.pool.Exec(ctx, ddl); err != nil {
		return "", &provision.CreateError{Kind: provision.KindRole, Name: name, Err: err}
	}
	return provision.Created, nil
}

// DatabaseExists checks the system catalog for a database of the given name.
func (a *Admin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := a.pool.QueryRow(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, name).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pg_database: %w", err)
	}
	return true, nil
}

// EnsureDatabase creates a database owned by owner if it does not exist.
func (a *Admin) EnsureDatabase(ctx context.Context, name, owner string) (provision.Outcome, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid database name %q", name)
	}
	if !ValidIdentifier(owner) {
		return "", fmt.Errorf("invalid owner name %q", owner)
	}

	exists, err := a.DatabaseExists(ctx, name)
	if err != nil {
		return "", &provision.ProbeError{Kind: provision.KindDatabase, Name: name, Err: err}
	}
	if exists {
		a.logger.Info("database already present", "database", name)
		return provision.AlreadyPresent, nil
	}

	a.logger.Info("creating database", "database", name, "owner", owner)
	ddl := fmt.Sprintf(`CREATE DATABASE %s OWNER %s`, name, owner)
	if _, err := a.pool.Exec(ctx, ddl); err != nil {
		return "", &provision.CreateError{Kind: provision.KindDatabase, Name: name, Err: err}
	}
	return provision.Created, nil
}

// Check is one verification result.
type Check struct {
	Name string
	OK   bool
}

// Verify confirms the application schema is in place.
func (a *Admin) Verify(ctx context.Context) ([]Check, error) {
	var checks []Check
	for _, table := range []string{"entity", "remote", "embedding_chunk"} {
		var reg *string
		err := a.pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, "public."+table).Scan(&reg)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("verify table %q: %w", table, err)
		}
		checks = append(checks, Check{Name: "table " + table, OK: reg != nil})
	}
	return checks, nil
}
