// Package hba compiles the comma-separated CIDR allow-list from configuration
// into the host-based access rules consumed by Postgres at first init.
package hba

import (
	"fmt"
	"os"
	"strings"
)

const (
	// MethodSCRAM is required for all network clients.
	MethodSCRAM = "scram-sha-256"
	// MethodPeer is used for same-host socket connections.
	MethodPeer = "peer"
	// LocalAddress marks the fixed socket rule.
	LocalAddress = "local"
)

// Rule is one access-control entry.
type Rule struct {
	CIDR   string
	Method string
}

// Compile turns a raw comma-separated CIDR list into an ordered rule set.
// Tokens are trimmed; empty tokens are dropped; input order is preserved.
// An empty input falls back to def. The fixed local peer rule is always
// prepended.
func Compile(raw, def string) []Rule {
	rules := []Rule{{CIDR: LocalAddress, Method: MethodPeer}}

	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		rules = append(rules, Rule{CIDR: tok, Method: MethodSCRAM})
	}
	return rules
}

// Render formats rules as pg_hba.conf lines, one per rule.
func Render(rules []Rule) string {
	var b strings.Builder
	b.WriteString("# Generated by mhdb init. Edits are overwritten on re-init.\n")
	for _, r := range rules {
		if r.CIDR == LocalAddress {
			fmt.Fprintf(&b, "local   all   all   %s\n", r.Method)
			continue
		}
		fmt.Fprintf(&b, "host   all   all   %s   %s\n", r.CIDR, r.Method)
	}
	return b.String()
}

// WriteFile renders rules to path, readable by the owner only. The file is
// consumed once, when the database cluster is first initialized.
func WriteFile(path string, rules []Rule) error {
	if err := os.WriteFile(path, []byte(Render(rules)), 0o600); err != nil {
		return fmt.Errorf("write hba file: %w", err)
	}
	return nil
}
