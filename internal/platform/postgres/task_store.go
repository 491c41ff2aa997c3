package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

const taskColumns = `id, task_type, status, input, output, error, webhook_url, created_at, updated_at`

// TaskStore implements store.TaskStore on PostgreSQL.
type TaskStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a task store on an open connection pool.
// If logger is nil, the default logger is used.
func NewTaskStore(db *sql.DB, logger *slog.Logger) *TaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := getTask(ctx, s.db, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", "get", "failed to get task", MapError(err))
	}
	return task, nil
}

// Put implements store.TaskStore. An existing task with the same ID is
// replaced.
func (s *TaskStore) Put(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == uuid.Nil {
		return store.NewStoreError("task", "put", "task ID is required", store.ErrInvalidEntity)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			task_type = EXCLUDED.task_type,
			status = EXCLUDED.status,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			webhook_url = EXCLUDED.webhook_url,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.TaskType,
		task.Status,
		[]byte(task.Input),
		nullJSON(task.Output),
		nullString(task.Error),
		nullString(task.WebhookURL),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save task",
			slog.String("task_id", task.ID.String()),
			slog.String("task_type", string(task.TaskType)),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "put", "failed to save task", MapError(err))
	}
	return nil
}

// PartialUpdate implements store.TaskStore. The row is locked with
// SELECT ... FOR UPDATE, so the IfStatus check and the write are atomic
// with respect to concurrent updates of the same task.
func (s *TaskStore) PartialUpdate(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if patch.UpdatedAt == 0 {
		patch.UpdatedAt = domain.NowMillis()
	}

	var updated *domain.Task
	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		current, err := getTask(ctx, tx, id, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrTaskNotFound
			}
			return err
		}

		if patch.IfStatus != nil && current.Status != *patch.IfStatus {
			return domain.ErrStatusConflict
		}

		next := patch.Apply(current)
		query := `
			UPDATE tasks
			SET task_type = $2, status = $3, input = $4, output = $5,
				error = $6, webhook_url = $7, updated_at = $8
			WHERE id = $1
		`
		result, err := tx.ExecContext(ctx, query,
			id,
			next.TaskType,
			next.Status,
			[]byte(next.Input),
			nullJSON(next.Output),
			nullString(next.Error),
			nullString(next.WebhookURL),
			next.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if err := CheckRowsAffected(result, "task"); err != nil {
			return err
		}

		updated = next
		return nil
	})

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, domain.ErrStatusConflict):
		return nil, err
	default:
		log.Error("failed to update task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", "update", "failed to update task", MapError(err))
	}
}

// ScanPage implements store.TaskStore with keyset pagination on id. The
// token is the last id of the previous page.
func (s *TaskStore) ScanPage(ctx context.Context, token string, limit int) ([]*domain.Task, string, error) {
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	var (
		rows *sql.Rows
		err  error
	)
	if token == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks ORDER BY id LIMIT $1`, limit+1)
	} else {
		after, parseErr := uuid.Parse(token)
		if parseErr != nil {
			return nil, "", store.ErrInvalidPageToken
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id > $1 ORDER BY id LIMIT $2`, after, limit+1)
	}
	if err != nil {
		return nil, "", store.NewStoreError("task", "scan", "failed to query tasks", MapError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	page := make([]*domain.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, "", store.NewStoreError("task", "scan", "failed to scan task row", err)
		}
		page = append(page, task)
	}
	if err := rows.Err(); err != nil {
		return nil, "", store.NewStoreError("task", "scan", "error iterating task rows", MapError(err))
	}

	next := ""
	if len(page) > limit {
		page = page[:limit]
		next = page[limit-1].ID.String()
	}
	return page, next, nil
}

// Delete implements store.TaskStore.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrTaskNotFound
		}
		return store.NewStoreError("task", "delete", "failed to delete task", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getTask(ctx context.Context, db store.DBTX, id uuid.UUID, forUpdate bool) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanTask(db.QueryRowContext(ctx, query, id))
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		input      []byte
		output     []byte
		errMsg     sql.NullString
		webhookURL sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.TaskType,
		&task.Status,
		&input,
		&output,
		&errMsg,
		&webhookURL,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Input = input
	if len(output) > 0 {
		task.Output = output
	}
	task.Error = errMsg.String
	task.WebhookURL = webhookURL.String
	return &task, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
