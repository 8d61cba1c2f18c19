package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Open live event connections",
	})

	hubRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "rooms",
		Help:      "Non-empty stream rooms",
	})

	hubMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "messages_sent_total",
		Help:      "Messages queued to connections by type",
	}, []string{"type"})

	hubSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "send_failures_total",
		Help:      "Messages that could not be queued to a connection",
	})
)

// SetHubSize records the number of connections and rooms.
func SetHubSize(connections, rooms int) {
	hubConnections.Set(float64(connections))
	hubRooms.Set(float64(rooms))
}

// IncHubMessage counts a message queued to one connection.
func IncHubMessage(msgType string) {
	hubMessages.WithLabelValues(msgType).Inc()
}

// IncHubSendFailure counts a failed delivery.
func IncHubSendFailure() {
	hubSendFailures.Inc()
}
