package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agent-matrix/matrixhub-db/internal/config"
	"github.com/agent-matrix/matrixhub-db/internal/engine"
	"github.com/agent-matrix/matrixhub-db/internal/firewall"
	"github.com/agent-matrix/matrixhub-db/internal/hba"
	"github.com/agent-matrix/matrixhub-db/internal/pgadmin"
	"github.com/agent-matrix/matrixhub-db/internal/provision"
	"github.com/agent-matrix/matrixhub-db/internal/stack"
	"github.com/agent-matrix/matrixhub-db/internal/sysd"
)

const hbaFilePath = "/etc/postgresql/pg_hba.conf"

// probeReady runs pg_isready inside the database container.
func (a *app) probeReady(ctx context.Context) error {
	code, err := a.eng.Exec(ctx, a.cfg.Docker.Container,
		[]string{"pg_isready", "-U", a.cfg.Database.User}, nil, io.Discard, io.Discard)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("pg_isready exited %d", code)
	}
	return nil
}

// customImageBuilt reports whether an image build context from `mhdb init`
// is available.
func (a *app) customImageBuilt() bool {
	_, err := os.Stat(filepath.Join(a.cfg.Docker.DeployDir, "Dockerfile"))
	return err == nil
}

// databaseSpec assembles the Postgres container spec with tuning flags.
func databaseSpec(cfg *config.Config, image string, customHBA bool) engine.ContainerSpec {
	cmd := []string{
		"-c", "shared_buffers=" + cfg.Tuning.SharedBuffers,
		"-c", "work_mem=" + cfg.Tuning.WorkMem,
		"-c", "max_connections=" + strconv.Itoa(cfg.Tuning.MaxConnections),
	}
	if customHBA {
		cmd = append(cmd, "-c", "hba_file="+hbaFilePath)
	}
	return engine.ContainerSpec{
		Name:  cfg.Docker.Container,
		Image: image,
		Env: []string{
			"POSTGRES_DB=" + cfg.Database.Name,
			"POSTGRES_USER=" + cfg.Database.User,
			"POSTGRES_PASSWORD=" + cfg.Database.Password,
		},
		Cmd:      cmd,
		Network:  cfg.Docker.Network,
		Binds:    []string{cfg.Docker.Volume + ":/var/lib/postgresql/data"},
		Labels:   map[string]string{"matrixhub.service": "postgres"},
		Restart:  true,
		HostPort: cfg.Database.HostPort,
		Port:     5432,
	}
}

// ensureDatabaseObjects ensures role, database, and schema once the server
// accepts connections. All three are safe to repeat.
func (a *app) ensureDatabaseObjects(ctx context.Context) error {
	serverURL := fmt.Sprintf("postgres://%s:%s@localhost:%d/postgres",
		a.cfg.Database.User, a.cfg.Database.Password, a.cfg.Database.HostPort)
	admin, err := pgadmin.Connect(ctx, serverURL, a.logger)
	if err != nil {
		return err
	}
	defer admin.Close()

	if _, err := admin.EnsureRole(ctx, a.cfg.Database.User, a.cfg.Database.Password); err != nil {
		return err
	}
	if _, err := admin.EnsureDatabase(ctx, a.cfg.Database.Name, a.cfg.Database.User); err != nil {
		return err
	}

	appDB, err := pgadmin.Connect(ctx, a.cfg.ConnString(), a.logger)
	if err != nil {
		return err
	}
	defer appDB.Close()
	return appDB.EnsureSchema(ctx)
}

func upCmd() *cobra.Command {
	var withFirewall, withSystemd bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision and start the full database stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			custom := a.customImageBuilt()
			image := a.cfg.Docker.BaseImage
			if custom {
				image = a.cfg.Docker.Image
			}

			steps := []provision.Step{
				{Name: "install_runtime", Run: a.eng.Ping},
			}
			if withFirewall {
				steps = append(steps, provision.Step{Name: "open_network_access", Run: func(ctx context.Context) error {
					fw := firewall.NewManager(a.logger)
					if err := fw.Available(ctx); err != nil {
						return err
					}
					return fw.OpenPort(ctx, a.cfg.Database.HostPort, "")
				}})
			}
			steps = append(steps,
				provision.Step{Name: "build_artifact", Run: func(ctx context.Context) error {
					if custom {
						return a.eng.BuildImage(ctx, a.cfg.Docker.DeployDir, a.cfg.Docker.Image)
					}
					return a.eng.PullImage(ctx, image)
				}},
				provision.Step{Name: "ensure_network", Run: func(ctx context.Context) error {
					return a.ensure(ctx, provision.KindNetwork, a.cfg.Docker.Network, func(ctx context.Context) error {
						return a.eng.CreateNetwork(ctx, a.cfg.Docker.Network)
					})
				}},
				provision.Step{Name: "ensure_volume", Run: func(ctx context.Context) error {
					return a.ensure(ctx, provision.KindVolume, a.cfg.Docker.Volume, func(ctx context.Context) error {
						return a.eng.CreateVolume(ctx, a.cfg.Docker.Volume)
					})
				}},
				provision.Step{Name: "replace_container", Run: func(ctx context.Context) error {
					spec := databaseSpec(a.cfg, image, custom)
					return a.prov.ReplaceContainer(ctx, a.eng, spec.Name, a.cfg.Health.GracePeriod, func(ctx context.Context) error {
						_, err := a.eng.CreateContainer(ctx, spec)
						return err
					})
				}},
				provision.Step{Name: "wait_for_healthy", Run: func(ctx context.Context) error {
					err := provision.WaitHealthy(ctx, a.probeReady, a.cfg.Health.Interval, a.cfg.Health.MaxAttempts, a.emitter, a.logger)
					var hte *provision.HealthTimeoutError
					if errors.As(err, &hte) {
						if tail, tailErr := a.eng.LogTail(ctx, a.cfg.Docker.Container, 50); tailErr == nil {
							fmt.Fprintf(os.Stderr, "--- recent container logs ---\n%s", tail)
						}
					}
					return err
				}},
				provision.Step{Name: "ensure_database_objects", Run: a.ensureDatabaseObjects},
			)
			if withSystemd {
				steps = append(steps, provision.Step{Name: "register_autostart", Run: func(ctx context.Context) error {
					bin, err := os.Executable()
					if err != nil {
						return err
					}
					wd, err := os.Getwd()
					if err != nil {
						return err
					}
					return sysd.NewInstaller(bin, wd, a.logger).Install(ctx)
				}})
			}

			return a.runner.Run(ctx, steps)
		},
	}
	cmd.Flags().BoolVar(&withFirewall, "with-firewall", false, "open the host firewall port during bring-up")
	cmd.Flags().BoolVar(&withSystemd, "with-systemd", false, "register systemd auto-start during bring-up")
	return cmd
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the database container (volumes are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			steps := []provision.Step{
				{Name: "stop_container", Run: func(ctx context.Context) error {
					return a.eng.StopContainer(ctx, a.cfg.Docker.Container, a.cfg.Health.GracePeriod)
				}},
				{Name: "remove_container", Run: func(ctx context.Context) error {
					return a.eng.RemoveContainer(ctx, a.cfg.Docker.Container)
				}},
			}
			return a.runner.Run(ctx, steps)
		},
	}
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove containers, network, and data volumes (destructive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			if err := confirm(os.Stdin, os.Stdout, "remove all containers and DELETE the data volumes"); err != nil {
				return err
			}

			st, err := stack.Load(a.cfg.Docker.StackFile)
			if err != nil {
				return err
			}

			var containers []string
			for _, name := range st.ServiceNames() {
				containers = append(containers, a.cfg.Docker.Container+"-"+name)
			}
			containers = append(containers, a.cfg.Docker.Container)
			for _, name := range containers {
				if err := a.eng.StopContainer(ctx, name, a.cfg.Health.GracePeriod); err != nil {
					return err
				}
				if err := a.eng.RemoveContainer(ctx, name); err != nil {
					return err
				}
			}
			for _, vol := range append(st.Volumes(), a.cfg.Docker.Volume) {
				if err := a.eng.RemoveVolume(ctx, vol); err != nil {
					return err
				}
			}
			return a.eng.RemoveNetwork(ctx, a.cfg.Docker.Network)
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the image build context (Dockerfile, schema, access rules)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.Docker.DeployDir
			initDir := filepath.Join(dir, "initdb.d")
			if err := os.MkdirAll(initDir, 0o750); err != nil {
				return fmt.Errorf("create deploy dir: %w", err)
			}

			rules := hba.Compile(a.cfg.Access.CIDRs, config.PermissiveCIDRDefault)
			if err := hba.WriteFile(filepath.Join(dir, "pg_hba.conf"), rules); err != nil {
				return err
			}

			schemaPath := filepath.Join(initDir, "01-schema.sql")
			if err := os.WriteFile(schemaPath, []byte(pgadmin.Schema), 0o644); err != nil {
				return fmt.Errorf("write schema: %w", err)
			}

			dockerfile := fmt.Sprintf(`FROM %s
COPY pg_hba.conf %s
COPY initdb.d/ /docker-entrypoint-initdb.d/
RUN chown postgres:postgres %s && chmod 600 %s
`, a.cfg.Docker.BaseImage, hbaFilePath, hbaFilePath, hbaFilePath)
			if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
				return fmt.Errorf("write Dockerfile: %w", err)
			}

			fmt.Printf("build context written to %s (%d access rules)\n", dir, len(rules))
			fmt.Println("note: access rules are baked in at build time; re-run init and build to change them")
			return nil
		},
	}
}

func buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the custom database image from the deploy directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			if !a.customImageBuilt() {
				return fmt.Errorf("no Dockerfile in %s; run `mhdb init` first", a.cfg.Docker.DeployDir)
			}
			return a.eng.BuildImage(ctx, a.cfg.Docker.DeployDir, a.cfg.Docker.Image)
		},
	}
}
