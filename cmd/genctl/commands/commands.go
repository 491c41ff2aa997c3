package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alecthomas/kingpin/v2"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/platform/postgres"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"github.com/phrazzld/genflow/internal/store"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var formats = []string{FormatTable, FormatJSON, FormatYAML}

// Command is a runnable genctl command.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand holds the global flags and the instances shared by every
// command.
type RootCommand struct {
	// Global flags.
	ConfigPath string
	Debug      bool

	// Global instances.
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// OpenTaskStore replaces the Postgres task store when set.
	OpenTaskStore func(ctx context.Context) (store.TaskStore, func() error, error)

	cfg *config.Config
}

// NewRootCommand registers the global flags on app.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("config", "Path to a YAML config file.").Short('c').StringVar(&c.ConfigPath)
	app.Flag("debug", "Enable debug logging.").BoolVar(&c.Debug)

	return c
}

// Config loads the configuration once.
func (c *RootCommand) Config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if c.ConfigPath != "" {
		cfg, err = config.LoadFromFile(c.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

// TaskStore opens the configured task store. The returned func releases it.
func (c *RootCommand) TaskStore(ctx context.Context) (store.TaskStore, func() error, error) {
	if c.OpenTaskStore != nil {
		return c.OpenTaskStore(ctx)
	}

	cfg, err := c.Config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("database.url is not configured")
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewTaskStore(db, c.Logger), db.Close, nil
}

// ReplicateClient builds a Replicate client from the configuration.
func (c *RootCommand) ReplicateClient() (*replicate.Client, error) {
	cfg, err := c.Config()
	if err != nil {
		return nil, err
	}
	rc := cfg.Backends.Replicate
	if rc.APIToken == "" {
		return nil, errors.New("backends.replicate.api_token is not configured")
	}
	return replicate.NewClient(rc.BaseURL, rc.APIToken, nil)
}
