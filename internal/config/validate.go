package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

func validate(cfg *Config) error {
	if cfg.Database.Password == "" {
		return fmt.Errorf("config: POSTGRES_PASSWORD is required")
	}
	if cfg.Database.HostPort <= 0 || cfg.Database.HostPort > 65535 {
		return fmt.Errorf("config: PG_PORT %d out of range", cfg.Database.HostPort)
	}
	if cfg.Docker.Container == "" {
		return fmt.Errorf("config: PG_CONTAINER must not be empty")
	}
	if cfg.Docker.Network == "" {
		return fmt.Errorf("config: PG_NETWORK must not be empty")
	}
	if cfg.Docker.Volume == "" {
		return fmt.Errorf("config: PG_VOLUME must not be empty")
	}
	if cfg.Backup.Keep < 1 {
		return fmt.Errorf("config: BACKUP_KEEP must be >= 1")
	}
	if cfg.Health.MaxAttempts < 1 {
		return fmt.Errorf("config: HEALTH_MAX_ATTEMPTS must be >= 1")
	}

	for _, tok := range strings.Split(cfg.Access.CIDRs, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(tok); err != nil {
			return fmt.Errorf("config: PG_ALLOWED_CIDRS entry %q: %w", tok, err)
		}
	}

	if strings.TrimSpace(cfg.Access.CIDRs) == "" {
		slog.Warn("PG_ALLOWED_CIDRS is unset; the access list will allow all hosts",
			"default", PermissiveCIDRDefault)
	}

	return nil
}
