package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConstraint matches any *ConstraintError via errors.Is.
	ErrConstraint = errors.New("store: constraint violation")
)

// ConstraintError reports an integrity violation (foreign key, unique, check).
// Target names the constraint or column that rejected the write.
type ConstraintError struct {
	Code   string
	Target string
	Err    error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %s violated (%s): %v", e.Target, e.Code, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraint }

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		target := pgErr.ConstraintName
		if target == "" {
			target = pgErr.ColumnName
		}
		if target == "" {
			target = pgErr.Code
		}
		return &ConstraintError{Code: pgErr.Code, Target: target, Err: err}
	}
	return err
}
