// Command migrate applies the embedded entitlement schema migrations.
//
//	migrate up       apply all pending migrations
//	migrate down     roll back the most recent migration
//	migrate status   print applied and pending migrations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"proofwork/internal/config"
	"proofwork/internal/db"
)

// runner executes one migrate command. Replaced in tests.
type runner func(ctx context.Context, envFile string, cmd db.MigrateCommand) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(migrate).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(run runner) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the entitlement database schema",
		Version:       config.NewBuildInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading DATABASE_URL")

	sub := func(use, short string, cmd db.MigrateCommand) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return run(c.Context(), envFile, cmd)
			},
		}
	}
	root.AddCommand(
		sub("up", "Apply all pending migrations", db.MigrateUp),
		sub("down", "Roll back the most recent migration", db.MigrateDown),
		sub("status", "Show migration status", db.MigrateStatus),
	)
	return root
}

func migrate(ctx context.Context, envFile string, cmd db.MigrateCommand) error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.LoadDatabaseConfig(files...)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, *cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.Migrate(ctx, pool, cmd)
}
