package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the ledger reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeExclusionViolation   = "23P01"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// retryableError marks an error that should restart the whole transaction.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so TxManager retries the transaction.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports serialization failures, deadlocks and errors wrapped with Retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	code := Code(err)
	return code == CodeSerializationFailure || code == CodeDeadlockDetected
}

// Code extracts the SQLSTATE from err, or "" when err is not a server error.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Constraint returns the violated constraint name, if any.
func Constraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsUniqueViolation reports a unique index violation, optionally on a specific constraint.
func IsUniqueViolation(err error, constraint ...string) bool {
	if Code(err) != CodeUniqueViolation {
		return false
	}
	if len(constraint) == 0 {
		return true
	}
	name := Constraint(err)
	for _, c := range constraint {
		if c == name {
			return true
		}
	}
	return false
}

// IsExclusionViolation reports an exclusion constraint violation.
func IsExclusionViolation(err error) bool {
	return Code(err) == CodeExclusionViolation
}
