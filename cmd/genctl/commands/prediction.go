package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/phrazzld/genflow/internal/platform/replicate"
)

// PredictionCommand shows a Replicate prediction, optionally waiting for it
// to settle.
type PredictionCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id       string
	wait     bool
	interval time.Duration
	timeout  time.Duration
	format   string
}

// NewPredictionCommand returns the prediction command.
func NewPredictionCommand(rootCmd *RootCommand, app *kingpin.Application) *PredictionCommand {
	c := &PredictionCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("prediction", "Show an upstream prediction.")
	c.Cmd.Arg("id", "Prediction ID.").Required().StringVar(&c.id)
	c.Cmd.Flag("wait", "Poll until the prediction settles.").BoolVar(&c.wait)
	c.Cmd.Flag("interval", "Polling interval.").Default("3s").DurationVar(&c.interval)
	c.Cmd.Flag("timeout", "Give up waiting after this long.").Default("2m").DurationVar(&c.timeout)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(FormatTable).EnumVar(&c.format, formats...)

	return c
}

func (c PredictionCommand) Name() string { return c.Cmd.FullCommand() }

func (c PredictionCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.ReplicateClient()
	if err != nil {
		return err
	}

	var pred *replicate.Prediction
	if c.wait {
		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		pred, err = client.Wait(waitCtx, c.id, c.interval)
	} else {
		pred, err = client.GetPrediction(ctx, c.id, "")
	}
	if err != nil {
		return fmt.Errorf("could not get prediction: %w", err)
	}

	return printPrediction(c.rootCmd.Stdout, c.format, pred)
}
