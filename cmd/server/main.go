// Package main runs the genflow server: the task API, the prediction proxy
// and the background workers that dispatch tasks to generation backends.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/phrazzld/genflow/internal/platform/postgres"
)

func main() {
	if err := Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// Run parses the command line, builds the application and serves until
// shutdown.
func Run(ctx context.Context, args []string) error {
	cli := kingpin.New("genflow-server", "Generation task server.")
	cli.DefaultEnvars()
	configPath := cli.Flag("config", "Path to a config file.").String()
	migrate := cli.Flag("migrate", "Apply database migrations before serving.").Bool()

	if _, err := cli.Parse(args[1:]); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}
	logConfigSummary(cfg, logger)

	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if *migrate {
		if db == nil {
			return fmt.Errorf("--migrate requires a database url")
		}
		if err := postgres.Migrate(ctx, db, postgres.MigrateUp, logger); err != nil {
			_ = db.Close()
			return err
		}
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}
