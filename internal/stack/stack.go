// Package stack defines the optional sidecar services (connection pooler,
// metrics exporter, admin UI) that run next to the database container.
package stack

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/agent-matrix/matrixhub-db/internal/config"
	"github.com/agent-matrix/matrixhub-db/internal/engine"
)

// Well-known service names.
const (
	PgBouncer = "pgbouncer"
	Exporter  = "exporter"
	AdminUI   = "adminui"
)

type Stack struct {
	Services map[string]*Service `yaml:"services"`
}

type Service struct {
	Image    string            `yaml:"image"`
	HostPort int               `yaml:"host_port"`
	Port     int               `yaml:"port"`
	Env      map[string]string `yaml:"env"`
	Volume   string            `yaml:"volume"`
	Mount    string            `yaml:"mount"`
}

// Load reads an optional stack file and fills in defaults for the well-known
// services. An empty path yields the built-in stack.
func Load(path string) (*Stack, error) {
	st := &Stack{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, st); err != nil {
			return nil, err
		}
	}

	applyDefaults(st)

	if err := validate(st); err != nil {
		return nil, err
	}
	return st, nil
}

func applyDefaults(st *Stack) {
	if st.Services == nil {
		st.Services = make(map[string]*Service)
	}
	def := func(name string, svc Service) {
		if _, ok := st.Services[name]; !ok {
			st.Services[name] = &Service{}
		}
		s := st.Services[name]
		if s.Image == "" {
			s.Image = svc.Image
		}
		if s.HostPort == 0 {
			s.HostPort = svc.HostPort
		}
		if s.Port == 0 {
			s.Port = svc.Port
		}
		if s.Volume == "" {
			s.Volume = svc.Volume
		}
		if s.Mount == "" {
			s.Mount = svc.Mount
		}
	}

	def(PgBouncer, Service{Image: "edoburu/pgbouncer:latest", HostPort: 6432, Port: 6432})
	def(Exporter, Service{Image: "prometheuscommunity/postgres-exporter:latest", HostPort: 9187, Port: 9187})
	def(AdminUI, Service{
		Image:    "dpage/pgadmin4:latest",
		HostPort: 8081,
		Port:     80,
		Volume:   "matrixhub-adminui",
		Mount:    "/var/lib/pgadmin",
	})
}

func validate(st *Stack) error {
	for name, svc := range st.Services {
		if svc.Image == "" {
			return fmt.Errorf("stack: service %q missing image", name)
		}
		if svc.Port <= 0 || svc.Port > 65535 {
			return fmt.Errorf("stack: service %q invalid port %d", name, svc.Port)
		}
		if svc.HostPort <= 0 || svc.HostPort > 65535 {
			return fmt.Errorf("stack: service %q invalid host_port %d", name, svc.HostPort)
		}
		if (svc.Volume == "") != (svc.Mount == "") {
			return fmt.Errorf("stack: service %q must set volume and mount together", name)
		}
	}
	return nil
}

// ServiceNames returns the defined service names, sorted.
func (st *Stack) ServiceNames() []string {
	names := make([]string, 0, len(st.Services))
	for name := range st.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Volumes returns the named volumes declared by the stack services, sorted.
func (st *Stack) Volumes() []string {
	var vols []string
	for _, svc := range st.Services {
		if svc.Volume != "" {
			vols = append(vols, svc.Volume)
		}
	}
	sort.Strings(vols)
	return vols
}

// ContainerSpec builds the container spec for a named service, wiring it to
// the project network and the database credentials it needs.
func (st *Stack) ContainerSpec(name string, cfg *config.Config) (engine.ContainerSpec, error) {
	svc, ok := st.Services[name]
	if !ok {
		return engine.ContainerSpec{}, fmt.Errorf("stack: unknown service %q", name)
	}

	containerName := cfg.Docker.Container + "-" + name
	spec := engine.ContainerSpec{
		Name:     containerName,
		Image:    svc.Image,
		Network:  cfg.Docker.Network,
		Restart:  true,
		HostPort: svc.HostPort,
		Port:     svc.Port,
		Labels:   map[string]string{"matrixhub.service": name},
	}
	if svc.Volume != "" {
		spec.Binds = []string{svc.Volume + ":" + svc.Mount}
	}

	env := defaultEnv(name, cfg)
	for k, v := range svc.Env {
		env[k] = v
	}
	for k, v := range env {
		spec.Env = append(spec.Env, k+"="+v)
	}
	return spec, nil
}

func defaultEnv(name string, cfg *config.Config) map[string]string {
	dbHost := cfg.Docker.Container
	switch name {
	case PgBouncer:
		return map[string]string{
			"DB_HOST":     dbHost,
			"DB_PORT":     "5432",
			"DB_USER":     cfg.Database.User,
			"DB_PASSWORD": cfg.Database.Password,
			"DB_NAME":     cfg.Database.Name,
			"AUTH_TYPE":   "scram-sha-256",
		}
	case Exporter:
		dsn := fmt.Sprintf("postgresql://%s:%s@%s:5432/%s?sslmode=disable",
			cfg.Database.User, cfg.Database.Password, dbHost, cfg.Database.Name)
		return map[string]string{"DATA_SOURCE_NAME": dsn}
	case AdminUI:
		return map[string]string{
			"PGADMIN_DEFAULT_EMAIL":    "admin@matrixhub.local",
			"PGADMIN_DEFAULT_PASSWORD": cfg.Database.Password,
			"PGADMIN_LISTEN_PORT":      strconv.Itoa(80),
		}
	default:
		return map[string]string{}
	}
}
