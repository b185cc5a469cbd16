package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/killsync/internal/adapters/repository"
	service "github.com/okian/killsync/internal/app"
	"github.com/okian/killsync/pkg/logger"
)

func newSyncCmd(c *cli) *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one feed synchronization",
		Long: `Walk the corporation feed once. An empty store, or one whose oldest
killmail is newer than the cutoff date, is backfilled historically; otherwise
only new killmails are fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxPages < 0 {
				return errors.New("--max-pages must not be negative")
			}
			return c.started(cmd.Context(), func(svc *service.Service) error {
				rep, err := svc.Sync(cmd.Context(), maxPages)
				if err != nil {
					return err
				}
				c.log.Info(cmd.Context(), "sync finished",
					logger.String("mode", string(rep.Mode)),
					logger.String("stop_reason", string(rep.StopReason)),
					logger.Int("stored", rep.Stored))
				return c.print(rep)
			})
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap for this run (0 uses the configured cap)")
	return cmd
}

func newBackfillCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Repair stored killmails from their detail records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown backfill target %q (want attackers or corporations)", args[0])
		},
	}
	run := func(job func(*service.Service, context.Context) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return c.started(cmd.Context(), func(svc *service.Service) error {
				rep, err := job(svc, cmd.Context())
				if err != nil {
					return err
				}
				return c.print(rep)
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "attackers",
			Short: "Fetch attackers of killmails that have none",
			Args:  cobra.NoArgs,
			RunE: run(func(svc *service.Service, ctx context.Context) (any, error) {
				return svc.BackfillAttackers(ctx)
			}),
		},
		&cobra.Command{
			Use:   "corporations",
			Short: "Fill missing victim corporations",
			Args:  cobra.NoArgs,
			RunE: run(func(svc *service.Service, ctx context.Context) (any, error) {
				return svc.BackfillCorporations(ctx)
			}),
		},
	)
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := repository.Open(cmd.Context(), c.cfg.DBDriver, c.cfg.DataSource(), repository.WithLogger(c.log))
			if err != nil {
				return err
			}
			defer store.Close()
			c.log.Info(cmd.Context(), "schema up to date", logger.String("driver", store.Driver()))
			return nil
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store totals and the last sync run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.started(cmd.Context(), func(svc *service.Service) error {
				totals, err := svc.Reports().Totals(cmd.Context())
				if err != nil {
					return err
				}
				out := map[string]any{"totals": totals}
				if run, err := svc.LastSyncRun(cmd.Context()); err == nil {
					out["last_sync"] = run
				}
				return c.print(out)
			})
		},
	}
}
