package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New("test")
	require.NoError(t, m.Register())

	m.RecordCheckout("placed")
	m.RecordCheckout("placed")
	m.RecordCheckout("stock_changed")
	m.RecordRedemption("exhausted")
	m.RecordInventoryAdjustment("ORDER")
	m.RecordNotificationFailure()
	m.RecordHTTPRequest("POST", "/api/v1/checkout", 201, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckoutTotal.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckoutTotal.WithLabelValues("stock_changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedemptionsTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InventoryAdjustmentsTotal.WithLabelValues("ORDER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/checkout", "201")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCheckout("placed")
		m.RecordRedemption("ok")
		m.ObserveOrderTotal(10)
		m.RecordInventoryAdjustment("ORDER")
		m.RecordNotificationFailure()
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	require.NoError(t, m.Register())
	m.RecordCheckout("placed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "storefront_test_checkout_total"))
}
