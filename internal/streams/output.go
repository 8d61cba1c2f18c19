package streams

import (
	"time"

	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/metrics"
)

// Metric sources carried by SessionMetricsEvent.
const (
	MetricsSourceTranscoder = "transcoder"
	MetricsSourceHealth     = "health"
)

// outputHandler scrapes one attempt's transcoder output.
type outputHandler struct {
	supervisor *Supervisor
	sessionID  string
	generation uint64
}

func (h *outputHandler) HandleChunk(_, chunk string) {
	if reason, failed := ffmpeg.ConnectionFailure(chunk); failed {
		h.supervisor.logger.Warn("Camera connection problem", "session_id", h.sessionID, "reason", reason)
		h.supervisor.writeBack.Append(Record{
			Level:     "warn",
			Source:    "transcoder",
			SessionID: h.sessionID,
			Message:   reason,
		})
		return
	}

	m := ffmpeg.ParseMetrics(chunk)
	if m.Empty() {
		return
	}
	h.supervisor.updateMetrics(h.sessionID, h.generation, m, MetricsSourceTranscoder, false)
}

// RecordMeasurement writes an externally measured bitrate back into a session.
// Unknown sessions are ignored.
func (s *Supervisor) RecordMeasurement(id string, bitrateKbps float64) {
	s.updateMetrics(id, 0, ffmpeg.Metrics{BitrateKbps: &bitrateKbps}, MetricsSourceHealth, true)
}

// updateMetrics stores measured values on the session. A zero generation
// matches any attempt. Transcoder updates are published at most once per
// MetricsInterval; force publishes regardless.
func (s *Supervisor) updateMetrics(id string, gen uint64, m ffmpeg.Metrics, source string, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || (gen != 0 && sess.generation != gen) {
		return
	}

	now := time.Now()
	if m.FPS != nil {
		v := *m.FPS
		sess.currentFPS = &v
		metrics.SetSessionFPS(id, v)
	}
	if m.BitrateKbps != nil {
		v := *m.BitrateKbps
		sess.currentBandwidth = &v
		metrics.SetSessionBitrate(id, v)
	}
	sess.lastMeasuredAt = now

	if !force && now.Sub(sess.lastMetricsEvent) < s.opts.MetricsInterval {
		return
	}
	sess.lastMetricsEvent = now

	s.publish(events.SessionMetricsEvent{
		SessionID:   id,
		FPS:         sess.currentFPS,
		BitrateKbps: sess.currentBandwidth,
		Source:      source,
		Timestamp:   timestamp(now),
	})
	s.writeBack.SaveStatus(sess.status())
}
