package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/phrazzld/genflow/internal/platform/postgres"
)

// MigrateCommand runs schema migrations against the configured database.
type MigrateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	action string
}

// NewMigrateCommand returns the migrate command.
func NewMigrateCommand(rootCmd *RootCommand, app *kingpin.Application) *MigrateCommand {
	c := &MigrateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("migrate", "Run database migrations.")
	c.Cmd.Arg("action", "Migration to run (up, down, status, version, reset).").
		Default(postgres.MigrateUp).
		EnumVar(&c.action, postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus, postgres.MigrateVersion, postgres.MigrateReset)

	return c
}

func (c MigrateCommand) Name() string { return c.Cmd.FullCommand() }

func (c MigrateCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.Config()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is not configured")
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := postgres.Migrate(ctx, db, c.action, c.rootCmd.Logger); err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.rootCmd.Stdout, "Migration %q completed\n", c.action)
	return err
}
