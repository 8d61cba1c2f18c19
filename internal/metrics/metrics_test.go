package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestSessionMetricsCache(t *testing.T) {
	id := "test-session-1"

	DeleteSessionMetrics(id)

	if m := GetSessionMetrics(id); m != nil {
		t.Error("expected nil for non-existent session")
	}

	SetSessionFPS(id, 25.0)
	SetSessionBitrate(id, 1500)
	SetSessionState(id, "active")
	IncSessionRestarts(id)

	m := GetSessionMetrics(id)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FPS != 25.0 {
		t.Errorf("FPS = %v, want 25.0", m.FPS)
	}
	if m.BitrateKbps != 1500 {
		t.Errorf("BitrateKbps = %v, want 1500", m.BitrateKbps)
	}
	if m.State != "active" {
		t.Errorf("State = %q, want active", m.State)
	}
	if m.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", m.Restarts)
	}

	// Returned copy is independent
	m.FPS = 999
	if again := GetSessionMetrics(id); again.FPS != 25.0 {
		t.Errorf("cache was modified, FPS = %v, want 25.0", again.FPS)
	}

	DeleteSessionMetrics(id)
	if deleted := GetSessionMetrics(id); deleted != nil {
		t.Error("expected nil after delete")
	}
}

func TestSessionStateIsOneHot(t *testing.T) {
	id := "test-session-state"
	defer DeleteSessionMetrics(id)

	SetSessionState(id, "starting")
	SetSessionState(id, "error")

	if got := gaugeValue(t, sessionState.WithLabelValues(id, "error")); got != 1 {
		t.Errorf("error gauge = %v, want 1", got)
	}
	if got := gaugeValue(t, sessionState.WithLabelValues(id, "starting")); got != 0 {
		t.Errorf("starting gauge = %v, want 0", got)
	}
}

func TestGetAllSessionMetrics(t *testing.T) {
	DeleteSessionMetrics("session-a")
	DeleteSessionMetrics("session-b")
	defer DeleteSessionMetrics("session-a")
	defer DeleteSessionMetrics("session-b")

	SetSessionFPS("session-a", 15.0)
	SetSessionFPS("session-b", 30.0)

	all := GetAllSessionMetrics()
	if all["session-a"] == nil || all["session-a"].FPS != 15.0 {
		t.Errorf("session-a FPS = %v, want 15.0", all["session-a"])
	}
	if all["session-b"] == nil || all["session-b"].FPS != 30.0 {
		t.Errorf("session-b FPS = %v, want 30.0", all["session-b"])
	}

	all["session-a"].FPS = 999
	if fresh := GetAllSessionMetrics(); fresh["session-a"].FPS != 15.0 {
		t.Error("GetAllSessionMetrics returned a shared reference")
	}
}

func TestOverallHealthIsOneHot(t *testing.T) {
	SetOverallHealth("warning")

	if got := gaugeValue(t, healthOverall.WithLabelValues("warning")); got != 1 {
		t.Errorf("warning = %v, want 1", got)
	}
	if got := gaugeValue(t, healthOverall.WithLabelValues("healthy")); got != 0 {
		t.Errorf("healthy = %v, want 0", got)
	}
}

func TestAlertCounters(t *testing.T) {
	before := counterValue(t, alertsEmitted.WithLabelValues("cpu_high", "warning"))
	IncAlert("cpu_high", "warning")
	if got := counterValue(t, alertsEmitted.WithLabelValues("cpu_high", "warning")); got != before+1 {
		t.Errorf("alerts_total = %v, want %v", got, before+1)
	}
}
