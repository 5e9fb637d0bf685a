package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	t.Run("incr and decr", func(t *testing.T) {
		su.RegisterMetric("TestMetric")
		su.Run()
		defer su.Stop()

		su.Incr("TestMetric")
		su.Incr("TestMetric")
		su.Decr("TestMetric")

		assert.Eventually(t, func() bool {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
			su.expvarHandler(rr, req)

			var data map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&data); err != nil {
				return false
			}

			val, ok := data["TestMetric"].(float64)
			return ok && val == 1
		}, time.Second, 10*time.Millisecond, "expected TestMetric to reach 1")
	})
}
