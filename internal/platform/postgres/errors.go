package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/genflow/internal/store"
)

// SQLSTATE codes that map onto store errors.
const (
	uniqueViolationCode  = "23505"
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
	invalidTextCode      = "22P02"
)

// MapError translates driver errors into store sentinels. The driver error
// stays in the chain; unrecognised errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case uniqueViolationCode:
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	case checkViolationCode:
		return fmt.Errorf("%w: constraint %s: %w", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case notNullViolationCode:
		return fmt.Errorf("%w: column %s is null: %w", store.ErrInvalidEntity, pgErr.ColumnName, err)
	case invalidTextCode:
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	default:
		return err
	}
}

// CheckRowsAffected reports store.ErrNotFound when a statement touched no
// rows.
func CheckRowsAffected(result sql.Result, entity string) error {
	if result == nil {
		return errors.New("no result to inspect")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, entity)
	}
	return nil
}
