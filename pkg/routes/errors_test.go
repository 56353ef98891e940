package routes

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"

	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", identity.ErrValidation, http.StatusBadRequest},
		{"not found", fmt.Errorf("contact 4: %w", sentinel.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("%w: deadlock", identity.ErrConflict), http.StatusServiceUnavailable},
		{"has secondaries", fmt.Errorf("%w: contact 1 has 2", identity.ErrHasSecondaries), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := HTTPError(tt.err)
			assert.True(t, httperror.IsHTTPError(mapped))
			assert.Equal(t, tt.code, httperror.GetStatusCode(mapped))
		})
	}

	internal := errors.New("boom")
	assert.Same(t, internal, HTTPError(internal))
	assert.Nil(t, HTTPError(nil))
}
