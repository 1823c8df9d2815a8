package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agent-matrix/matrixhub-db/internal/config"
	"github.com/agent-matrix/matrixhub-db/internal/engine"
	"github.com/agent-matrix/matrixhub-db/internal/events"
	"github.com/agent-matrix/matrixhub-db/internal/metrics"
	"github.com/agent-matrix/matrixhub-db/internal/pgadmin"
	"github.com/agent-matrix/matrixhub-db/internal/provision"
)

var (
	envFile string
	logJSON bool
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "mhdb",
		Short:         "mhdb — deploy and operate the MatrixHub Postgres stack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file sourced before reading the environment")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		initCmd(),
		buildCmd(),
		upCmd(),
		downCmd(),
		startCmd(),
		stopCmd(),
		restartCmd(),
		statusCmd(),
		logsCmd(),
		psqlCmd(),
		healthCmd(),
		verifyCmd(),
		backupCmd(),
		restoreCmd(),
		cleanCmd(),
		pgbouncerCmd(),
		exporterCmd(),
		adminuiCmd(),
		systemdCmd(),
		firewallCmd(),
		metricsCmd(),
	)

	if err := root.Execute(); err != nil {
		if errors.Is(err, provision.ErrConfirmationDeclined) {
			fmt.Fprintln(os.Stderr, "aborted: confirmation declined")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// app wires the components a command needs. Configuration is resolved once
// here and never re-read mid-operation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	eng     *engine.Client
	emitter *events.Emitter
	prov    *provision.Provisioner
	runner  *provision.Runner
}

func newApp() (*app, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(logger)
	if err != nil {
		return nil, err
	}

	emitter := events.NewEmitter(logger)
	metrics.RegisterEventHandler(emitter)

	return &app{
		cfg:     cfg,
		logger:  logger,
		eng:     eng,
		emitter: emitter,
		prov:    provision.NewProvisioner(eng, logger),
		runner:  provision.NewRunner(emitter, logger, os.Stdout),
	}, nil
}

func (a *app) Close() {
	a.eng.Close()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ensure applies create-if-missing and emits the outcome event.
func (a *app) ensure(ctx context.Context, kind provision.Kind, name string, create func(context.Context) error) error {
	outcome, err := a.prov.Ensure(ctx, kind, name, create)
	if err != nil {
		return err
	}
	evType := events.ResourceReused
	if outcome == provision.Created {
		evType = events.ResourceCreated
	}
	a.emitter.Emit(events.Event{
		Type:     evType,
		Resource: name,
		Fields:   map[string]string{"kind": string(kind)},
	})
	return nil
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the database container",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()
			return a.eng.StartContainer(ctx, a.cfg.Docker.Container)
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the database container",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()
			return a.eng.StopContainer(ctx, a.cfg.Docker.Container, a.cfg.Health.GracePeriod)
		},
	}
}

func restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the database container",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()
			if err := a.eng.StopContainer(ctx, a.cfg.Docker.Container, a.cfg.Health.GracePeriod); err != nil {
				return err
			}
			return a.eng.StartContainer(ctx, a.cfg.Docker.Container)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show status of the database and sidecar containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			names := []string{
				a.cfg.Docker.Container,
				a.cfg.Docker.Container + "-pgbouncer",
				a.cfg.Docker.Container + "-exporter",
				a.cfg.Docker.Container + "-adminui",
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CONTAINER\tSTATUS")
			for _, name := range names {
				exists, err := a.eng.ContainerExists(ctx, name)
				if err != nil {
					return &provision.ProbeError{Kind: provision.KindContainer, Name: name, Err: err}
				}
				status := "absent"
				if exists {
					status, err = a.eng.ContainerStatus(ctx, name)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(w, "%s\t%s\n", name, status)
			}
			return w.Flush()
		},
	}
}

func logsCmd() *cobra.Command {
	var follow bool
	var tail int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show database container logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			if follow {
				return a.eng.StreamLogs(ctx, a.cfg.Docker.Container, true, os.Stdout)
			}
			out, err := a.eng.LogTail(ctx, a.cfg.Docker.Container, tail)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output")
	cmd.Flags().IntVar(&tail, "tail", 100, "number of lines to show")
	return cmd
}

func psqlCmd() *cobra.Command {
	var command string
	cmd := &cobra.Command{
		Use:   "psql",
		Short: "Run psql inside the database container",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			psql := []string{"psql", "-U", a.cfg.Database.User, a.cfg.Database.Name}
			if command != "" {
				psql = append(psql, "-c", command)
			}
			code, err := a.eng.Exec(ctx, a.cfg.Docker.Container, psql, os.Stdin, os.Stdout, os.Stderr)
			if err != nil {
				return err
			}
			if code != 0 {
				return fmt.Errorf("psql exited %d", code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&command, "command", "c", "", "run a single SQL command and exit")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe database readiness once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			if err := a.probeReady(ctx); err != nil {
				return fmt.Errorf("unhealthy: %w", err)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the application schema is in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			admin, err := pgadmin.Connect(ctx, a.cfg.ConnString(), a.logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			checks, err := admin.Verify(ctx)
			if err != nil {
				return err
			}
			failed := 0
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tRESULT")
			for _, c := range checks {
				result := "ok"
				if !c.OK {
					result = "MISSING"
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\n", c.Name, result)
			}
			w.Flush()
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}
}
