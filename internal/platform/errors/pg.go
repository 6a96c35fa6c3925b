package errors

import (
	stderrs "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store reacts to
const (
	SQLStateUniqueViolation     = "23505"
	SQLStateForeignKeyViolation = "23503"
	SQLStateNotNullViolation    = "23502"
	SQLStateCheckViolation      = "23514"
	SQLStateSerialization       = "40001"
	SQLStateDeadlock            = "40P01"
	SQLStateLockNotAvailable    = "55P03"
	SQLStateQueryCanceled       = "57014"
	SQLStateCannotConnectNow    = "57P03"
	SQLStateReadOnlyTx          = "25006"
)

// PgError returns the Postgres error err wraps
func PgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := stderrs.As(err, &pgErr)
	return pgErr, ok
}

// IsSQLState reports whether err wraps a Postgres error with state
func IsSQLState(err error, state string) bool {
	pgErr, ok := PgError(err)
	return ok && pgErr.Code == state
}

// DBErrorCode classifies a driver error; ok is false for errors that did not come from pgx.
// Contention, statement timeouts and a server that is not accepting work are Unavailable
// so Retryable picks them up
func DBErrorCode(err error) (code ErrorCode, ok bool) {
	switch {
	case err == nil:
		return ErrorCodeUnknown, false
	case stderrs.Is(err, pgx.ErrNoRows):
		return ErrorCodeNotFound, true
	case stderrs.Is(err, pgx.ErrTxCommitRollback):
		return ErrorCodeUnavailable, true
	}
	pgErr, isPg := PgError(err)
	if !isPg {
		return ErrorCodeUnknown, false
	}
	switch pgErr.Code {
	case SQLStateUniqueViolation:
		return ErrorCodeDuplicateKey, true
	case SQLStateForeignKeyViolation:
		return ErrorCodeInvalidArgument, true
	case SQLStateNotNullViolation, SQLStateCheckViolation:
		return ErrorCodeValidation, true
	case SQLStateSerialization, SQLStateDeadlock, SQLStateLockNotAvailable, SQLStateQueryCanceled,
		SQLStateCannotConnectNow, SQLStateReadOnlyTx:
		return ErrorCodeUnavailable, true
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "22"):
		return ErrorCodeInvalidArgument, true
	case strings.HasPrefix(pgErr.Code, "08"):
		return ErrorCodeUnavailable, true
	}
	return ErrorCodeDB, true
}

// FromPostgres wraps err with its classified code; nil stays nil and coded errors pass through
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, coded := As(err); coded {
		return err
	}
	code, ok := DBErrorCode(err)
	if !ok {
		code = ErrorCodeDB
	}
	return Wrap(err, code, msg)
}

// FromPostgresf is FromPostgres with a formatted message
func FromPostgresf(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	return FromPostgres(err, fmt.Sprintf(format, a...))
}
