package identity

import (
	"errors"
	"fmt"

	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
)

var (
	// ErrValidation rejects a candidate with neither an email nor a phone.
	ErrValidation = errors.New("either email or phone must be provided")

	// ErrConflict means a concurrent unit of work changed the clusters being resolved.
	// The service retries once before returning it.
	ErrConflict = fmt.Errorf("concurrent identity update: %w", sentinel.ErrConflict)

	// ErrIntegrityViolation means a cluster was read with zero or several primaries.
	// It is never repaired automatically.
	ErrIntegrityViolation = errors.New("contact cluster integrity violation")

	// ErrHasSecondaries refuses to delete a primary that still anchors live secondaries.
	ErrHasSecondaries = errors.New("contact is the primary of live secondaries")

	ErrStoreUnavailable = fmt.Errorf("contact store unavailable: %w", sentinel.ErrUnavailable)
)

func isConflict(err error) bool {
	return errors.Is(err, sentinel.ErrConflict)
}

// classify folds arbitrary store failures into the service's error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrIntegrityViolation),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrHasSecondaries),
		errors.Is(err, sentinel.ErrNotFound):
		return err
	case isConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
