// Command genctl is the operator CLI for genflow: it runs schema migrations,
// inspects stored tasks and looks up upstream predictions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/phrazzld/genflow/cmd/genctl/commands"
)

// Run runs genctl with the given arguments.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return execute(ctx, args, stdout, stderr, nil)
}

// execute lets tests adjust the root command before the command runs.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer, setup func(*commands.RootCommand)) error {
	app := kingpin.New("genctl", "Operator tool for the genflow task service.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	migrateCmd := commands.NewMigrateCommand(rootCmd, app)
	predictionCmd := commands.NewPredictionCommand(rootCmd, app)

	tasksCmd := commands.NewTasksCommand(app)
	tasksListCmd := commands.NewTasksListCommand(rootCmd, tasksCmd)
	tasksGetCmd := commands.NewTasksGetCommand(rootCmd, tasksCmd)
	tasksDeleteCmd := commands.NewTasksDeleteCommand(rootCmd, tasksCmd)

	cmds := map[string]commands.Command{
		migrateCmd.Name():     migrateCmd,
		predictionCmd.Name():  predictionCmd,
		tasksListCmd.Name():   tasksListCmd,
		tasksGetCmd.Name():    tasksGetCmd,
		tasksDeleteCmd.Name(): tasksDeleteCmd,
	}

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr
	rootCmd.Logger = newLogger(stderr, rootCmd.Debug)
	if setup != nil {
		setup(rootCmd)
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debug("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				if err := cmds[cmdName].Run(ctx); err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// newLogger logs to stderr so command output on stdout stays parseable.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := Run(context.Background(), os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
