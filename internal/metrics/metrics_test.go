package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	before := testutil.ToFloat64(TradesTotal.WithLabelValues("TEST/USDT"))
	TradesTotal.WithLabelValues("TEST/USDT").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TradesTotal.WithLabelValues("TEST/USDT")))

	LaneHalted.WithLabelValues("TEST/USDT").Set(1)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "matching_trades_total"))
	assert.True(t, strings.Contains(body, `matching_lane_halted{pair="TEST/USDT"} 1`))
}
