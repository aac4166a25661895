package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/v1/payments/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id, nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/v1/payments/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var hist *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "http_request_duration_seconds" {
			hist = mf
		}
	}
	require.NotNil(t, hist)
	require.Equal(t, dto.MetricType_HISTOGRAM, hist.GetType())
	var count uint64
	for _, metric := range hist.GetMetric() {
		count += metric.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(3), count)
}

func TestNewHTTPMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewHTTPMetrics(reg)
	require.NoError(t, err)
	_, err = NewHTTPMetrics(reg)
	require.Error(t, err)
}
