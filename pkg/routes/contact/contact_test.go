package contact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contactrepo "github.com/priyanshu8007b/bitespeed/internal/repositories/contact"
	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/middleware"
	"github.com/priyanshu8007b/bitespeed/pkg/models"
)

func setup(t *testing.T) (*echo.Echo, *identity.Service) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	service := identity.NewService(contactrepo.NewMemoryRepository(), logger)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	NewHandler(service).Register(e)
	return e, service
}

func do(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestGetContact(t *testing.T) {
	e, service := setup(t)
	ctx := context.Background()
	_, err := service.Identify(ctx, identity.Candidate{Email: "a@x.com", Phone: "111"})
	require.NoError(t, err)
	_, err = service.Identify(ctx, identity.Candidate{Email: "b@x.com", Phone: "111"})
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/contacts/2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Contact.PrimaryContactID)
	assert.Equal(t, []int64{2}, resp.Contact.SecondaryContactIDs)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, resp.Contact.Emails)
}

func TestGetContact_Errors(t *testing.T) {
	e, _ := setup(t)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/contacts/99").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/contacts/abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/contacts/0").Code)
}

func TestDeleteContact(t *testing.T) {
	e, service := setup(t)
	ctx := context.Background()
	_, err := service.Identify(ctx, identity.Candidate{Email: "a@x.com", Phone: "111"})
	require.NoError(t, err)
	_, err = service.Identify(ctx, identity.Candidate{Email: "a@x.com", Phone: "222"})
	require.NoError(t, err)

	rec := do(e, http.MethodDelete, "/contacts/1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "secondaries")

	rec = do(e, http.MethodDelete, "/contacts/2")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/contacts/2").Code)

	rec = do(e, http.MethodGet, "/contacts/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Contact.PrimaryContactID)
	assert.Equal(t, []string{"111"}, resp.Contact.PhoneNumbers)

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/contacts/1").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/contacts/1").Code)
}
