package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email string `json:"email" validate:"omitempty,max=10"`
	Count int    `json:"count" validate:"gte=0"`
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(sample{Email: "a@x.com"}))

	err := Validate(sample{Email: "far-too-long@x.com", Count: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Email' failed rule 'max=10'")
	assert.Contains(t, err.Error(), "field 'Count' failed rule 'gte=0'")
}

func TestBindRequest(t *testing.T) {
	e := echo.New()

	bind := func(body string) (sample, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return BindRequest[sample](e.NewContext(req, httptest.NewRecorder()))
	}

	got, err := bind(`{"email":"a@x.com","count":2}`)
	require.NoError(t, err)
	assert.Equal(t, sample{Email: "a@x.com", Count: 2}, got)

	_, err = bind(`{"email":`)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	_, err = bind(`{"count":-5}`)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
