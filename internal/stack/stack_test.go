package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agent-matrix/matrixhub-db/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_PORT", "5432")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestLoadBuiltinStack(t *testing.T) {
	st, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{PgBouncer, Exporter, AdminUI} {
		if _, ok := st.Services[name]; !ok {
			t.Errorf("missing built-in service %q", name)
		}
	}
	if st.Services[PgBouncer].HostPort != 6432 {
		t.Errorf("pgbouncer host_port = %d, want 6432", st.Services[PgBouncer].HostPort)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	yaml := `
services:
  pgbouncer:
    image: custom/pgbouncer:1.2
    host_port: 7000
`
	path := filepath.Join(t.TempDir(), "stack.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := st.Services[PgBouncer]
	if svc.Image != "custom/pgbouncer:1.2" {
		t.Errorf("image = %q, want override", svc.Image)
	}
	if svc.HostPort != 7000 {
		t.Errorf("host_port = %d, want 7000", svc.HostPort)
	}
	if svc.Port != 6432 {
		t.Errorf("port = %d, want default 6432", svc.Port)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	yaml := `
services:
  exporter:
    host_port: 99999
`
	path := filepath.Join(t.TempDir(), "stack.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for out-of-range host_port")
	}
}

func TestContainerSpecWiring(t *testing.T) {
	cfg := testConfig(t)
	st, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	spec, err := st.ContainerSpec(Exporter, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "matrixhub-pg-exporter" {
		t.Errorf("name = %q, want matrixhub-pg-exporter", spec.Name)
	}
	if spec.Network != cfg.Docker.Network {
		t.Errorf("network = %q, want %q", spec.Network, cfg.Docker.Network)
	}
	found := false
	for _, e := range spec.Env {
		if e == "DATA_SOURCE_NAME=postgresql://matrixhub:pw@matrixhub-pg:5432/matrixhub?sslmode=disable" {
			found = true
		}
	}
	if !found {
		t.Errorf("exporter DSN not wired: %v", spec.Env)
	}
}

func TestContainerSpecUnknownService(t *testing.T) {
	cfg := testConfig(t)
	st, _ := Load("")
	if _, err := st.ContainerSpec("nope", cfg); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestVolumesFollowOverrides(t *testing.T) {
	st, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got := st.Volumes(); len(got) != 1 || got[0] != "matrixhub-adminui" {
		t.Errorf("built-in volumes = %v, want [matrixhub-adminui]", got)
	}

	yaml := `
services:
  adminui:
    volume: custom-adminui
    mount: /var/lib/pgadmin
`
	path := filepath.Join(t.TempDir(), "stack.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := st.Volumes(); len(got) != 1 || got[0] != "custom-adminui" {
		t.Errorf("overridden volumes = %v, want [custom-adminui]", got)
	}
}

func TestServiceNamesSorted(t *testing.T) {
	st, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{AdminUI, Exporter, PgBouncer}
	got := st.ServiceNames()
	if len(got) != len(want) {
		t.Fatalf("service names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAdminUIVolumeBind(t *testing.T) {
	cfg := testConfig(t)
	st, _ := Load("")
	spec, err := st.ContainerSpec(AdminUI, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Binds) != 1 || spec.Binds[0] != "matrixhub-adminui:/var/lib/pgadmin" {
		t.Errorf("binds = %v, want adminui volume bind", spec.Binds)
	}
}
