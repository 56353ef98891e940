// Package routes holds the error mapping shared by the HTTP handlers.
package routes

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
)

// HTTPError maps identity error kinds to status codes. Anything unmapped is returned
// as is and rendered as a generic 500 by the error middleware.
func HTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrValidation):
		return httperror.NewHTTPError(http.StatusBadRequest, identity.ErrValidation.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, "contact not found")
	case errors.Is(err, identity.ErrHasSecondaries):
		return httperror.NewHTTPError(http.StatusConflict, "contact is the primary of other contacts, delete its secondaries first")
	case errors.Is(err, identity.ErrConflict):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "contact is being updated concurrently, retry the request")
	default:
		return err
	}
}
