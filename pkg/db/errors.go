package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation = "23505"
	sqlStateCheckViolation  = "23514"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is set the violated constraint must match it.
func IsUniqueViolation(err error, constraintName string) bool {
	return isViolation(err, sqlStateUniqueViolation, constraintName, "duplicate key value", "UNIQUE constraint failed")
}

// IsCheckViolation reports whether err is a CHECK constraint violation, such
// as the non-negative quantity check on feed_stock_items.
func IsCheckViolation(err error, constraintName string) bool {
	return isViolation(err, sqlStateCheckViolation, constraintName, "violates check constraint", "CHECK constraint failed")
}

func isViolation(err error, sqlState, constraintName string, fallbacks ...string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != sqlState {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	// sqlite only reports violations in the message text
	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	for _, fallback := range fallbacks {
		if strings.Contains(msg, fallback) {
			return true
		}
	}
	return false
}
