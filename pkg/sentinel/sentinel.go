package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by repositories and clients.
// Services translate them into domain errors; only the HTTP boundary maps them to status codes.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
