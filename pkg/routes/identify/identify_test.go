package identify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshu8007b/bitespeed/internal/repositories/contact"
	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/middleware"
	"github.com/priyanshu8007b/bitespeed/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newServer(service Identifier) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	e.Use(middleware.Context())
	NewHandler(service).Register(e)
	return e
}

func post(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/identify", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) models.ConsolidatedContact {
	t.Helper()
	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Contact
}

func TestIdentify_Flow(t *testing.T) {
	e := newServer(identity.NewService(contact.NewMemoryRepository(), testLogger()))

	rec := post(e, `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)
	assert.Equal(t, []string{"lorraine@hillvalley.edu"}, first.Emails)
	assert.Equal(t, []string{"123456"}, first.PhoneNumbers)
	assert.Equal(t, []int64{}, first.SecondaryContactIDs)

	rec = post(e, `{"email":"mcfly@hillvalley.edu","phoneNumber":123456}`)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)
	assert.Equal(t, first.PrimaryContactID, second.PrimaryContactID)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, second.Emails)
	assert.Len(t, second.SecondaryContactIDs, 1)

	rec = post(e, `{"email":null,"phone":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, second, decode(t, rec))
}

func TestIdentify_ResponseShape(t *testing.T) {
	e := newServer(identity.NewService(contact.NewMemoryRepository(), testLogger()))

	rec := post(e, `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"contact":{"primaryContactId":1,"emails":["a@x.com"],"phoneNumbers":[],"secondaryContactIds":[]}}`, rec.Body.String())
}

func TestIdentify_BadRequests(t *testing.T) {
	e := newServer(identity.NewService(contact.NewMemoryRepository(), testLogger()))

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank values", `{"email":"  ","phone":""}`},
		{"nulls", `{"email":null,"phoneNumber":null}`},
		{"malformed", `{"email":`},
		{"phone object", `{"phone":{"n":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(e, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

type stubIdentifier struct {
	err   error
	calls *int
}

func (s stubIdentifier) Identify(ctx context.Context, candidate identity.Candidate) (*models.IdentifyResponse, error) {
	if s.calls != nil {
		*s.calls++
	}
	return nil, s.err
}

func TestIdentify_EmptyRequestNeverReachesService(t *testing.T) {
	var calls int
	e := newServer(stubIdentifier{calls: &calls})

	for _, body := range []string{`{}`, `{"email":"","phone":null}`, `{"email":" ","phoneNumber":"\t"}`} {
		rec := post(e, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, calls)

	post(e, `{"phoneNumber":123}`)
	assert.Equal(t, 1, calls)
}

func TestIdentify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"conflict", identity.ErrConflict, http.StatusServiceUnavailable, ""},
		{"integrity", identity.ErrIntegrityViolation, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)},
		{"store", errors.Join(identity.ErrStoreUnavailable, errors.New("dial tcp: refused")), http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(newServer(stubIdentifier{err: tt.err}), `{"email":"a@x.com"}`)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotContains(t, rec.Body.String(), "dial tcp")
			if tt.message != "" {
				var body middleware.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

func TestRequest_Candidate(t *testing.T) {
	assert.Equal(t, identity.Candidate{Phone: "1"}, Request{Phone: "1", PhoneNumber: "2"}.Candidate())
	assert.Equal(t, identity.Candidate{Email: "e", Phone: "2"}, Request{Email: "e", PhoneNumber: "2"}.Candidate())
}

func TestFlexString(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"phone": 9876543210, "phoneNumber": "  12 "}`), &req))
	assert.Equal(t, FlexString("9876543210"), req.Phone)
	assert.Equal(t, FlexString("  12 "), req.PhoneNumber)

	assert.Error(t, json.Unmarshal([]byte(`{"phone": true}`), &req))
}
