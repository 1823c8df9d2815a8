package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("POSTGRES_DB", "hubdb")
	t.Setenv("PG_PORT", "5433")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Name != "hubdb" {
		t.Errorf("db name = %q, want hubdb", cfg.Database.Name)
	}
	if cfg.Database.HostPort != 5433 {
		t.Errorf("host port = %d, want 5433", cfg.Database.HostPort)
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Docker.Container != "matrixhub-pg" {
		t.Errorf("container = %q, want matrixhub-pg", cfg.Docker.Container)
	}
	if cfg.Docker.Network != "matrixhub-net" {
		t.Errorf("network = %q, want matrixhub-net", cfg.Docker.Network)
	}
	if cfg.Health.Interval != time.Second {
		t.Errorf("health interval = %v, want 1s", cfg.Health.Interval)
	}
	if cfg.Health.MaxAttempts != 120 {
		t.Errorf("health max attempts = %d, want 120", cfg.Health.MaxAttempts)
	}
	if cfg.Backup.Keep != 7 {
		t.Errorf("backup keep = %d, want 7", cfg.Backup.Keep)
	}
}

func TestLoadDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "POSTGRES_PASSWORD=fromfile\nPG_CONTAINER=custom-pg\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables already set in the environment.
	t.Setenv("POSTGRES_PASSWORD", "x")
	os.Unsetenv("POSTGRES_PASSWORD")
	t.Setenv("PG_CONTAINER", "x")
	os.Unsetenv("PG_CONTAINER")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Password != "fromfile" {
		t.Errorf("password = %q, want fromfile", cfg.Database.Password)
	}
	if cfg.Docker.Container != "custom-pg" {
		t.Errorf("container = %q, want custom-pg", cfg.Docker.Container)
	}
}

func TestLoadMissingDotenvIgnored(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing dotenv file should not fail: %v", err)
	}
}

func TestConnString(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "matrixhub")
	t.Setenv("POSTGRES_USER", "matrixhub")
	t.Setenv("PG_PORT", "5432")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := "postgres://matrixhub:pw@localhost:5432/matrixhub"
	if got := cfg.ConnString(); got != want {
		t.Errorf("conn string = %q, want %q", got, want)
	}
}
