package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/killsync/internal/app"
	"github.com/okian/killsync/internal/config"
	"github.com/okian/killsync/pkg/logger"
)

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	load func(ctx context.Context) (*config.Config, error)
	out  io.Writer
	// opts are appended to the service options of every command.
	opts []service.Option

	cfg *config.Config
	log logger.Logger
}

func newRootCmd(c *cli) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "killsync",
		Short:        "Ingest a corporation's killmail feed and report on it",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv(config.EnvPrefix+"CONFIG", configPath); err != nil {
					return err
				}
			}
			cfg, err := c.load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			if c.log == nil {
				if err := logger.SetLevelString(cfg.LogLevel); err != nil {
					logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
						logger.String("log_level", cfg.LogLevel), logger.Error(err))
					_ = logger.SetLevelString("info")
				}
				c.log = logger.Get()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides "+config.EnvPrefix+"CONFIG)")

	root.AddCommand(
		newSyncCmd(c),
		newBackfillCmd(c),
		newMigrateCmd(c),
		newStatsCmd(c),
		newServeCmd(c),
	)
	return root
}

// service builds a Service for the loaded config with the CLI logger.
func (c *cli) service() *service.Service {
	opts := append([]service.Option{service.WithLogger(c.log)}, c.opts...)
	return service.New(c.cfg, opts...)
}

// started starts a Service and hands it to fn, stopping it afterwards.
func (c *cli) started(ctx context.Context, fn func(*service.Service) error) error {
	svc := c.service()
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()
	return fn(svc)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
