package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"foodledger/internal/core/apperror"
)

// PostgreSQL error codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// MapError converts driver errors into application errors. entity and key
// describe what was being written and end up in the error details.
// Errors that are already AppErrors pass through.
func MapError(err error, entity, key string) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, key)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.NewAlreadyExists(entity, key).WithCause(err)
		case pgForeignKeyViolation:
			return apperror.NewValidation("referenced entity does not exist").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return apperror.NewConcurrentModification(entity, key).WithCause(err)
		case pgQueryCanceled:
			return apperror.NewUnavailable(err).WithDetail("reason", "statement timeout")
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewUnavailable(err)
	}
	return err
}
