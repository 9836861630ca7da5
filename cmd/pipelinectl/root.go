package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"associateflow/config"
	"associateflow/db"
)

// commandContext loads configuration on first use, so commands that never
// touch the database run without it.
type commandContext struct {
	cfg    config.Config
	logger *slog.Logger
	loaded bool
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.loaded {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	c.loaded = true
	return cfg, nil
}

func (c *commandContext) withPool(ctx context.Context, fn func(pool *pgxpool.Pool) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MaxConnIdleTime: 30 * time.Second})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Inspect and advance associates through the commercial pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newStagesCommand())
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newAdvanceCommand(ctx))

	return rootCmd
}
