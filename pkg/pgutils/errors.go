// Package pgutils classifies PostgreSQL errors independent of the driver
// that produced them (pgx through bun, or bun's own pgdriver).
package pgutils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"
)

// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeNotNullViolation     = "23502"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
)

// SQLState returns the five-character SQLSTATE carried by err, or "" when err
// is not a PostgreSQL error.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		return drvErr.Field('C')
	}
	return ""
}

// Constraint returns the violated constraint name when the driver reports one.
func Constraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		return drvErr.Field('n')
	}
	return ""
}

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKeyViolation)
}

// IsNotNullViolation checks if the error is a PostgreSQL not-null constraint violation (23502).
func IsNotNullViolation(err error) bool {
	return hasCode(err, CodeNotNullViolation)
}

// IsCheckViolation checks if the error is a PostgreSQL check constraint violation (23514).
func IsCheckViolation(err error) bool {
	return hasCode(err, CodeCheckViolation)
}

// IsSerializationFailure reports a 40001 abort.
func IsSerializationFailure(err error) bool {
	return hasCode(err, CodeSerializationFailure)
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if state := SQLState(err); state != "" {
		return state == code
	}
	// Errors that crossed a string boundary (e.g. fmt.Errorf("%v")) lose their type.
	return strings.Contains(err.Error(), "SQLSTATE "+code)
}
