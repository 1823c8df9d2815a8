package pgadmin

import (
	"strings"
	"testing"
)

func TestValidIdentifier(t *testing.T) {
	valid := []string{"matrixhub", "matrix_hub", "_role", "role2"}
	for _, name := range valid {
		if !ValidIdentifier(name) {
			t.Errorf("ValidIdentifier(%q) = false, want true", name)
		}
	}
	invalid := []string{"", "2role", "Role", "drop table", "a;b", `a"b`, "a-b"}
	for _, name := range invalid {
		if ValidIdentifier(name) {
			t.Errorf("ValidIdentifier(%q) = true, want false", name)
		}
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := QuoteLiteral("plain"); got != "'plain'" {
		t.Errorf("QuoteLiteral = %q", got)
	}
	if got := QuoteLiteral("o'brien"); got != "'o''brien'" {
		t.Errorf("QuoteLiteral = %q", got)
	}
}

func TestGeneratePasswordUnique(t *testing.T) {
	a, b := GeneratePassword(), GeneratePassword()
	if a == b {
		t.Error("expected distinct generated passwords")
	}
	if len(a) < 16 {
		t.Errorf("generated password too short: %d", len(a))
	}
}

func TestPasswordOrGeneratedKeepsSupplied(t *testing.T) {
	if got := passwordOrGenerated("s3cret"); got != "s3cret" {
		t.Errorf("passwordOrGenerated = %q, want supplied password back", got)
	}
}

func TestPasswordOrGeneratedFillsEmpty(t *testing.T) {
	a, b := passwordOrGenerated(""), passwordOrGenerated("")
	if a == "" || b == "" {
		t.Fatal("expected a generated credential for empty input")
	}
	if a == b {
		t.Error("expected distinct generated credentials")
	}
}

func TestSchemaContainsTables(t *testing.T) {
	for _, table := range []string{"entity", "remote", "embedding_chunk"} {
		if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %q", table)
		}
	}
	if !strings.Contains(Schema, "IF NOT EXISTS") {
		t.Error("schema must be idempotent")
	}
}
