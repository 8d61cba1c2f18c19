package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var overallLevels = []string{"healthy", "warning", "critical"}

var (
	healthCheck = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "check_healthy",
		Help:      "Latest check result per resource, 1 healthy and 0 unhealthy",
	}, []string{"key"})

	healthOverall = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "overall",
		Help:      "Aggregate health, 1 for the current level",
	}, []string{"level"})

	systemMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "system",
		Name:      "usage_percent",
		Help:      "Sampled system resource usage",
	}, []string{"resource"})

	alertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "alerts_total",
		Help:      "Alerts emitted after deduplication",
	}, []string{"type", "severity"})

	alertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "alerts_suppressed_total",
		Help:      "Alerts dropped by the dedupe window",
	}, []string{"type"})
)

// SetCheckResult records the latest result of a health check.
func SetCheckResult(key string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	healthCheck.WithLabelValues(key).Set(v)
}

// DeleteCheckResult forgets a resource that is no longer checked.
func DeleteCheckResult(key string) {
	healthCheck.DeleteLabelValues(key)
}

// SetOverallHealth records the aggregate health level.
func SetOverallHealth(level string) {
	for _, l := range overallLevels {
		v := 0.0
		if l == level {
			v = 1
		}
		healthOverall.WithLabelValues(l).Set(v)
	}
}

// SetSystemUsage records a sampled resource percentage.
func SetSystemUsage(resource string, percent float64) {
	systemMetric.WithLabelValues(resource).Set(percent)
}

// IncAlert counts an emitted alert.
func IncAlert(alertType, severity string) {
	alertsEmitted.WithLabelValues(alertType, severity).Inc()
}

// IncAlertSuppressed counts an alert dropped as a duplicate.
func IncAlertSuppressed(alertType string) {
	alertsSuppressed.WithLabelValues(alertType).Inc()
}
