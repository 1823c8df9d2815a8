// Package config resolves the process configuration once, from a dotenv file
// and the environment, into an immutable struct passed to every component.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// PermissiveCIDRDefault is what the access list falls back to when no CIDR
// list is configured. Operators are warned loudly when it is in effect.
const PermissiveCIDRDefault = "0.0.0.0/0"

type Config struct {
	Database Database
	Docker   Docker
	Tuning   Tuning
	Access   Access
	Backup   Backup
	Health   Health
}

type Database struct {
	Name     string `env:"POSTGRES_DB" envDefault:"matrixhub"`
	User     string `env:"POSTGRES_USER" envDefault:"matrixhub"`
	Password string `env:"POSTGRES_PASSWORD"`
	HostPort int    `env:"PG_PORT" envDefault:"5432"`
}

type Docker struct {
	Container string `env:"PG_CONTAINER" envDefault:"matrixhub-pg"`
	Network   string `env:"PG_NETWORK" envDefault:"matrixhub-net"`
	Volume    string `env:"PG_VOLUME" envDefault:"matrixhub-pgdata"`
	Image     string `env:"PG_IMAGE" envDefault:"matrixhub-db:latest"`
	BaseImage string `env:"PG_BASE_IMAGE" envDefault:"postgres:16"`
	DeployDir string `env:"PG_DEPLOY_DIR" envDefault:"./deploy"`
	StackFile string `env:"PG_STACK_FILE" envDefault:""`
}

type Tuning struct {
	SharedBuffers  string `env:"PG_SHARED_BUFFERS" envDefault:"256MB"`
	WorkMem        string `env:"PG_WORK_MEM" envDefault:"16MB"`
	MaxConnections int    `env:"PG_MAX_CONNECTIONS" envDefault:"200"`
}

type Access struct {
	CIDRs string `env:"PG_ALLOWED_CIDRS" envDefault:""`
}

type Backup struct {
	Dir  string `env:"BACKUP_DIR" envDefault:"./backups"`
	Keep int    `env:"BACKUP_KEEP" envDefault:"7"`
}

type Health struct {
	Interval    time.Duration `env:"HEALTH_INTERVAL" envDefault:"1s"`
	MaxAttempts int           `env:"HEALTH_MAX_ATTEMPTS" envDefault:"120"`
	GracePeriod time.Duration `env:"STOP_GRACE_PERIOD" envDefault:"10s"`
}

// Load sources the dotenv file (if present), parses the environment, applies
// defaults, and validates. The result is not re-read mid-operation.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConnString builds a connection URL for administrative access from the host.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s",
		c.Database.User, c.Database.Password, c.Database.HostPort, c.Database.Name)
}
