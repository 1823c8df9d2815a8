package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent-matrix/matrixhub-db/internal/backup"
	"github.com/agent-matrix/matrixhub-db/internal/firewall"
	"github.com/agent-matrix/matrixhub-db/internal/metrics"
	"github.com/agent-matrix/matrixhub-db/internal/provision"
	"github.com/agent-matrix/matrixhub-db/internal/stack"
	"github.com/agent-matrix/matrixhub-db/internal/sysd"
)

// sidecarUp provisions one sidecar service with the replace policy.
func (a *app) sidecarUp(ctx context.Context, name string) error {
	st, err := stack.Load(a.cfg.Docker.StackFile)
	if err != nil {
		return err
	}
	spec, err := st.ContainerSpec(name, a.cfg)
	if err != nil {
		return err
	}

	steps := []provision.Step{
		{Name: "pull_" + name + "_image", Run: func(ctx context.Context) error {
			return a.eng.PullImage(ctx, spec.Image)
		}},
	}
	if len(spec.Binds) > 0 {
		volName, _, _ := strings.Cut(spec.Binds[0], ":")
		steps = append(steps, provision.Step{Name: "ensure_" + name + "_volume", Run: func(ctx context.Context) error {
			return a.ensure(ctx, provision.KindVolume, volName, func(ctx context.Context) error {
				return a.eng.CreateVolume(ctx, volName)
			})
		}})
	}
	steps = append(steps, provision.Step{Name: "replace_" + name + "_container", Run: func(ctx context.Context) error {
		return a.prov.ReplaceContainer(ctx, a.eng, spec.Name, a.cfg.Health.GracePeriod, func(ctx context.Context) error {
			_, err := a.eng.CreateContainer(ctx, spec)
			return err
		})
	}})
	return a.runner.Run(ctx, steps)
}

// sidecarDown stops and removes one sidecar service.
func (a *app) sidecarDown(ctx context.Context, name string) error {
	containerName := a.cfg.Docker.Container + "-" + name
	if err := a.eng.StopContainer(ctx, containerName, a.cfg.Health.GracePeriod); err != nil {
		return err
	}
	return a.eng.RemoveContainer(ctx, containerName)
}

func sidecarCmd(use, short, service string) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Start the " + service + " sidecar",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				ctx, cancel := signalContext()
				defer cancel()
				return a.sidecarUp(ctx, service)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Stop and remove the " + service + " sidecar",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				ctx, cancel := signalContext()
				defer cancel()
				return a.sidecarDown(ctx, service)
			},
		},
	)
	return cmd
}

func pgbouncerCmd() *cobra.Command {
	return sidecarCmd("pgbouncer", "Manage the PgBouncer connection pooler", stack.PgBouncer)
}

func exporterCmd() *cobra.Command {
	return sidecarCmd("exporter", "Manage the Prometheus postgres exporter", stack.Exporter)
}

func adminuiCmd() *cobra.Command {
	return sidecarCmd("adminui", "Manage the admin UI", stack.AdminUI)
}

func backupCmd() *cobra.Command {
	var list, prune bool
	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"backup-now"},
		Short:   "Dump the database to a timestamped artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			r := backup.NewRunner(a.eng, a.cfg.Backup.Dir, a.cfg.Backup.Keep, a.emitter, a.logger)
			if list {
				artifacts, err := r.List()
				if err != nil {
					return err
				}
				for _, art := range artifacts {
					fmt.Printf("%s\t%d bytes\t%s\n", art.Path, art.Size, art.ModTime.Format("2006-01-02 15:04:05"))
				}
				return nil
			}
			if prune {
				removed, err := r.Prune()
				if err != nil {
					return err
				}
				fmt.Printf("pruned %d artifacts\n", len(removed))
				return nil
			}

			path, err := r.Backup(ctx, a.cfg.Docker.Container, a.cfg.Database.Name, a.cfg.Database.User)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list existing backup artifacts")
	cmd.Flags().BoolVar(&prune, "prune", false, "prune artifacts beyond the retention count")
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dump-file>",
		Short: "Restore the database from a dump artifact (destructive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			if err := confirm(os.Stdin, os.Stdout, "OVERWRITE the current database contents"); err != nil {
				return err
			}

			r := backup.NewRunner(a.eng, a.cfg.Backup.Dir, a.cfg.Backup.Keep, a.emitter, a.logger)
			return r.Restore(ctx, a.cfg.Docker.Container, a.cfg.Database.Name, a.cfg.Database.User, args[0])
		},
	}
}

func systemdCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "systemd", Short: "Manage systemd auto-start and backup timer"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "install",
			Short: "Install and enable the systemd units",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				ctx, cancel := signalContext()
				defer cancel()

				bin, err := os.Executable()
				if err != nil {
					return err
				}
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				return sysd.NewInstaller(bin, wd, a.logger).Install(ctx)
			},
		},
		&cobra.Command{
			Use:   "remove",
			Short: "Disable and remove the systemd units",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				ctx, cancel := signalContext()
				defer cancel()

				bin, err := os.Executable()
				if err != nil {
					return err
				}
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				return sysd.NewInstaller(bin, wd, a.logger).Remove(ctx)
			},
		},
	)
	return cmd
}

func firewallCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "firewall", Short: "Manage host firewall access to the database port"}
	var source string
	open := &cobra.Command{
		Use:   "open",
		Short: "Allow TCP access to the database port",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			fw := firewall.NewManager(a.logger)
			if err := fw.Available(ctx); err != nil {
				return err
			}
			return fw.OpenPort(ctx, a.cfg.Database.HostPort, source)
		},
	}
	open.Flags().StringVar(&source, "source", "", "restrict access to a source CIDR")
	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Remove the database port allow rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			fw := firewall.NewManager(a.logger)
			if err := fw.Available(ctx); err != nil {
				return err
			}
			return fw.ClosePort(ctx, a.cfg.Database.HostPort, source)
		},
	}
	closeCmd.Flags().StringVar(&source, "source", "", "source CIDR the rule was created with")
	cmd.AddCommand(open, closeCmd)
	return cmd
}

func metricsCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve toolkit metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			fmt.Printf("serving metrics on %s/metrics\n", listen)
			return http.ListenAndServe(listen, mux)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9399", "listen address")
	return cmd
}
