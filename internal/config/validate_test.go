package config

import (
	"strings"
	"testing"
)

func TestValidateMissingPassword(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "")
	if _, err := Load(""); err == nil {
		t.Error("expected error for missing password")
	}
}

func TestValidatePortRange(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_PORT", "70000")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "PG_PORT") {
		t.Errorf("expected PG_PORT range error, got %v", err)
	}
}

func TestValidateBadCIDR(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_PORT", "5432")
	t.Setenv("PG_ALLOWED_CIDRS", "10.0.0.0/8,not-a-cidr")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "not-a-cidr") {
		t.Errorf("expected CIDR parse error, got %v", err)
	}
}

func TestValidateGoodCIDRList(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_PORT", "5432")
	t.Setenv("PG_ALLOWED_CIDRS", "10.0.0.0/8, 192.168.1.0/24")
	if _, err := Load(""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateBackupKeep(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_PORT", "5432")
	t.Setenv("PG_ALLOWED_CIDRS", "")
	t.Setenv("BACKUP_KEEP", "0")
	if _, err := Load(""); err == nil {
		t.Error("expected error for BACKUP_KEEP=0")
	}
}
