package database

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes that indicate a concurrent writer won a race.
const (
	CodeUniqueViolation      = pq.ErrorCode("23505")
	CodeSerializationFailure = pq.ErrorCode("40001")
	CodeDeadlockDetected     = pq.ErrorCode("40P01")
)

// IsConflict reports whether err is a unique violation, serialization failure or deadlock.
// Retrying the whole unit of work is safe for all three.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case CodeUniqueViolation, CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return false
}
