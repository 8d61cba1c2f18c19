package exporters

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/camfleet/internal/metrics"
)

func scrape(t *testing.T, h http.Handler) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func TestHTTPHandlerDefaultRegistry(t *testing.T) {
	metrics.SetSessionFPS("http-test-session", 25.0)
	defer metrics.DeleteSessionMetrics("http-test-session")

	code, body := scrape(t, HTTPHandler(nil))
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if !strings.Contains(body, "camfleet_session_fps") {
		t.Error("expected session series in response")
	}
}

// brokenCollector always fails to collect.
type brokenCollector struct{ desc *prometheus.Desc }

func (c brokenCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c brokenCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.NewInvalidMetric(c.desc, errors.New("sampler offline"))
}

func TestHTTPHandlerSkipsFailingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	good := prometheus.NewGauge(prometheus.GaugeOpts{Name: "camfleet_test_up", Help: "test gauge"})
	good.Set(1)
	reg.MustRegister(good)
	reg.MustRegister(brokenCollector{desc: prometheus.NewDesc("camfleet_test_broken", "always fails", nil, nil)})

	code, body := scrape(t, HTTPHandler(reg))
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if !strings.Contains(body, "camfleet_test_up 1") {
		t.Errorf("healthy series missing from scrape: %q", body)
	}
}
