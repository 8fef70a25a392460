package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/groupsync/internal/config"
	"github.com/dreamware/groupsync/internal/coordinator"
)

func (c *cli) newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [group]",
		Short: "Create a group on every host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := groupArg(cmd, args)
			if err != nil {
				return err
			}
			return c.withCoordinator(cmd.Context(), func(ctx context.Context, coord *coordinator.Coordinator) error {
				if err := coord.ApplyCreate(ctx, group); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Group %q created on %d hosts\n", group, len(coord.Hosts()))
				return nil
			})
		},
	}
	cmd.Flags().String("group", "", "Group id")
	return cmd
}

func (c *cli) newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [group]",
		Short: "Delete a group from every host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := groupArg(cmd, args)
			if err != nil {
				return err
			}
			return c.withCoordinator(cmd.Context(), func(ctx context.Context, coord *coordinator.Coordinator) error {
				if err := coord.ApplyDelete(ctx, group); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Group %q deleted from %d hosts\n", group, len(coord.Hosts()))
				return nil
			})
		},
	}
	cmd.Flags().String("group", "", "Group id")
	return cmd
}

func (c *cli) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [group]",
		Short: "Show whether a group exists on each host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := groupArg(cmd, args)
			if err != nil {
				return err
			}
			return c.withCoordinator(cmd.Context(), func(ctx context.Context, coord *coordinator.Coordinator) error {
				status := coord.GetStatus(ctx, group)
				for _, h := range coord.Hosts() {
					state := "Does not exist"
					if status[h] {
						state = "Exists"
					}
					fmt.Fprintf(c.out, "%s: %s\n", h, state)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("group", "", "Group id")
	return cmd
}

func (c *cli) newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Finish a pending rollback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCoordinator(cmd.Context(), func(ctx context.Context, coord *coordinator.Coordinator) error {
				rec, err := coord.Pending(ctx)
				if err != nil {
					return err
				}
				if rec == nil {
					fmt.Fprintln(c.out, "No pending rollbacks found")
					return nil
				}
				hosts := make([]string, len(rec.Hosts))
				for i, h := range rec.Hosts {
					hosts[i] = string(h)
				}
				fmt.Fprintf(c.out, "Pending rollback: %s %q on %s\n", rec.Operation, rec.GroupID, strings.Join(hosts, ", "))
				if err := coord.Resume(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Rollback complete")
				return nil
			})
		},
	}
}

func (c *cli) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every host before running an operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withConfig(func(cfg *config.Config, logger *slog.Logger) error {
				hosts, err := cfg.ResolveHosts()
				if err != nil {
					return err
				}
				results := coordinator.NewHealthChecker(cfg.Executor.RequestTimeout).Check(cmd.Context(), hosts)
				unhealthy := 0
				for _, r := range results {
					if r.Healthy() {
						fmt.Fprintf(c.out, "%s: healthy (%s)\n", r.Host, r.Latency.Round(time.Millisecond))
						continue
					}
					unhealthy++
					logger.Debug("health probe failed", "host", string(r.Host), "err", r.Err)
					fmt.Fprintf(c.out, "%s: unhealthy (%v)\n", r.Host, r.Err)
				}
				if unhealthy > 0 {
					return fmt.Errorf("%d of %d hosts unhealthy", unhealthy, len(results))
				}
				return nil
			})
		},
	}
}
