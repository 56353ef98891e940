package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordIdentify(t *testing.T) {
	before := testutil.ToFloat64(IdentifyTotal.WithLabelValues("merged"))
	RecordIdentify("merged", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(IdentifyTotal.WithLabelValues("merged")))
}

func TestRecordDemotionsAndDeletions(t *testing.T) {
	demotions := testutil.ToFloat64(DemotionsTotal)
	RecordDemotions(2)
	assert.Equal(t, demotions+2, testutil.ToFloat64(DemotionsTotal))

	secondaries := testutil.ToFloat64(DeletionsTotal.WithLabelValues("secondary"))
	RecordDeletion("secondary")
	assert.Equal(t, secondaries+1, testutil.ToFloat64(DeletionsTotal.WithLabelValues("secondary")))
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/contacts/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/contacts/:id", "204")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contacts/42", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
