// Package metrics provides Prometheus metrics for sessions, health checks and
// the live event hub.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camfleet"

var sessionStates = []string{"inactive", "starting", "active", "stopping", "error"}

var (
	sessionFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "fps",
		Help:      "Current transcoder output FPS",
	}, []string{"session_id"})

	sessionBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "bitrate_kbps",
		Help:      "Current transcoder output bitrate in kbit/s",
	}, []string{"session_id"})

	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "Session state, 1 for the current state and 0 otherwise",
	}, []string{"session_id", "state"})

	sessionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "restarts_total",
		Help:      "Automatic restart attempts",
	}, []string{"session_id"})

	// Local cache for health checks and the dashboard.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// SessionMetrics holds current metric values for a session.
type SessionMetrics struct {
	FPS         float64
	BitrateKbps float64
	State       string
	Restarts    int
}

// SetSessionFPS sets the current FPS for a session.
func SetSessionFPS(sessionID string, fps float64) {
	sessionFPS.WithLabelValues(sessionID).Set(fps)
	updateCache(sessionID, func(m *SessionMetrics) { m.FPS = fps })
}

// SetSessionBitrate sets the current bitrate for a session.
func SetSessionBitrate(sessionID string, kbps float64) {
	sessionBitrate.WithLabelValues(sessionID).Set(kbps)
	updateCache(sessionID, func(m *SessionMetrics) { m.BitrateKbps = kbps })
}

// SetSessionState marks state as the current state of a session.
func SetSessionState(sessionID, state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(sessionID, s).Set(v)
	}
	updateCache(sessionID, func(m *SessionMetrics) { m.State = state })
}

// IncSessionRestarts counts an automatic restart attempt.
func IncSessionRestarts(sessionID string) {
	sessionRestarts.WithLabelValues(sessionID).Inc()
	updateCache(sessionID, func(m *SessionMetrics) { m.Restarts++ })
}

// DeleteSessionMetrics removes all metrics for a session.
func DeleteSessionMetrics(sessionID string) {
	sessionFPS.DeleteLabelValues(sessionID)
	sessionBitrate.DeleteLabelValues(sessionID)
	sessionRestarts.DeleteLabelValues(sessionID)
	for _, s := range sessionStates {
		sessionState.DeleteLabelValues(sessionID, s)
	}

	sessionCacheMu.Lock()
	delete(sessionCache, sessionID)
	sessionCacheMu.Unlock()
}

// GetSessionMetrics returns current metric values for a session.
func GetSessionMetrics(sessionID string) *SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	if m, ok := sessionCache[sessionID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllSessionMetrics returns metrics for all known sessions.
func GetAllSessionMetrics() map[string]*SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	result := make(map[string]*SessionMetrics, len(sessionCache))
	for id, m := range sessionCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(sessionID string, update func(*SessionMetrics)) {
	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		m = &SessionMetrics{}
		sessionCache[sessionID] = m
	}
	update(m)
}
