package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// NewTasksCommand returns the parent command of the task subcommands.
func NewTasksCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("tasks", "Inspect and manage stored tasks.")
}

type TasksListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	typeFilter   string
	format       string
}

// NewTasksListCommand returns the tasks list command.
func NewTasksListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TasksListCommand {
	c := &TasksListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List tasks.")
	c.Cmd.Flag("status", "Filter by status (starting, processing, succeeded, failed).").StringVar(&c.statusFilter)
	c.Cmd.Flag("type", "Filter by task type.").StringVar(&c.typeFilter)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(FormatTable).EnumVar(&c.format, formats...)

	return c
}

func (c TasksListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TasksListCommand) Run(ctx context.Context) error {
	status := domain.TaskStatus(strings.ToLower(c.statusFilter))
	if status != "" && !status.IsValid() {
		return fmt.Errorf("invalid status filter: %s (must be: starting, processing, succeeded, failed)", c.statusFilter)
	}
	taskType := domain.TaskType(strings.ToLower(c.typeFilter))
	if taskType != "" && !taskType.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedTaskType, c.typeFilter)
	}

	tasks, closeFn, err := c.rootCmd.TaskStore(ctx)
	if err != nil {
		return fmt.Errorf("could not open task store: %w", err)
	}
	defer func() { _ = closeFn() }()

	matched := make([]*domain.Task, 0)
	for task, err := range store.Scan(ctx, tasks, store.ScanOptions{}) {
		if err != nil {
			return fmt.Errorf("could not list tasks: %w", err)
		}
		if status != "" && task.Status != status {
			continue
		}
		if taskType != "" && task.TaskType != taskType {
			continue
		}
		matched = append(matched, task)
	}

	return printTasks(c.rootCmd.Stdout, c.format, matched)
}

type TasksGetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewTasksGetCommand returns the tasks get command.
func NewTasksGetCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TasksGetCommand {
	c := &TasksGetCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("get", "Show one task.")
	c.Cmd.Arg("id", "Task ID.").Required().StringVar(&c.id)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(FormatTable).EnumVar(&c.format, formats...)

	return c
}

func (c TasksGetCommand) Name() string { return c.Cmd.FullCommand() }

func (c TasksGetCommand) Run(ctx context.Context) error {
	id, err := uuid.Parse(c.id)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", c.id, err)
	}

	tasks, closeFn, err := c.rootCmd.TaskStore(ctx)
	if err != nil {
		return fmt.Errorf("could not open task store: %w", err)
	}
	defer func() { _ = closeFn() }()

	task, err := tasks.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	return printTask(c.rootCmd.Stdout, c.format, task)
}

type TasksDeleteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id string
}

// NewTasksDeleteCommand returns the tasks delete command.
func NewTasksDeleteCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TasksDeleteCommand {
	c := &TasksDeleteCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("delete", "Delete a task.")
	c.Cmd.Arg("id", "Task ID.").Required().StringVar(&c.id)

	return c
}

func (c TasksDeleteCommand) Name() string { return c.Cmd.FullCommand() }

func (c TasksDeleteCommand) Run(ctx context.Context) error {
	id, err := uuid.Parse(c.id)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", c.id, err)
	}

	tasks, closeFn, err := c.rootCmd.TaskStore(ctx)
	if err != nil {
		return fmt.Errorf("could not open task store: %w", err)
	}
	defer func() { _ = closeFn() }()

	if err := tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	_, err = fmt.Fprintf(c.rootCmd.Stdout, "Task %s deleted\n", id)
	return err
}
