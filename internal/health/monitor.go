package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/metrics"
	"github.com/smazurov/camfleet/internal/probe"
	"github.com/smazurov/camfleet/internal/streams"
)

const maxRecentAlerts = 50

// Sessions is the supervisor view the monitor needs.
type Sessions interface {
	ActiveSessions() []streams.SessionStatus
	RecordMeasurement(id string, bitrateKbps float64)
	OutputDir() string
}

// Cameras lists configured cameras.
type Cameras interface {
	GetAllCameras() map[string]streams.CameraSpec
}

// Config holds check intervals and limits. Zero values take defaults.
type Config struct {
	CameraInterval    time.Duration `toml:"camera_interval"`
	SessionInterval   time.Duration `toml:"session_interval"`
	ThresholdInterval time.Duration `toml:"threshold_interval"`
	RecencyWindow     time.Duration `toml:"recency_window"`
	DedupeWindow      time.Duration `toml:"dedupe_window"`
	SegmentSeconds    int           `toml:"segment_seconds"`
	ProbeConcurrency  int           `toml:"probe_concurrency"`
	Thresholds        Thresholds    `toml:"thresholds"`
}

func (c *Config) applyDefaults() {
	if c.CameraInterval == 0 {
		c.CameraInterval = 10 * time.Minute
	}
	if c.SessionInterval == 0 {
		c.SessionInterval = 2 * time.Minute
	}
	if c.ThresholdInterval == 0 {
		c.ThresholdInterval = 60 * time.Second
	}
	if c.RecencyWindow == 0 {
		c.RecencyWindow = 30 * time.Second
	}
	if c.SegmentSeconds == 0 {
		c.SegmentSeconds = 2
	}
	if c.ProbeConcurrency == 0 {
		c.ProbeConcurrency = 4
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
}

// Options wires a Monitor to its collaborators.
type Options struct {
	Config   Config
	Sessions Sessions
	Cameras  Cameras
	Prober   probe.Prober
	Sampler  Sampler
	Events   events.Publisher
	Store    streams.Store
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Monitor runs camera, session and threshold checks.
type Monitor struct {
	cfg      Config
	sessions Sessions
	cameras  Cameras
	prober   probe.Prober
	sampler  Sampler
	events   events.Publisher
	records  *streams.WriteBack
	deduper  *Deduper
	now      func() time.Time
	logger   *slog.Logger

	// One in-flight check per class.
	cameraMu    sync.Mutex
	sessionMu   sync.Mutex
	thresholdMu sync.Mutex

	mu        sync.RWMutex
	snapshots map[string]Snapshot
	alerts    []Alert
	system    SystemSample
	counts    SessionCounts
}

// New creates a monitor.
func New(opts Options) *Monitor {
	cfg := opts.Config
	cfg.applyDefaults()
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = NewProcSampler()
	}
	prober := opts.Prober
	if prober == nil {
		prober = probe.New(probe.ModeRTSP, probe.DefaultTimeout)
	}
	logger := logging.GetLogger("health")

	return &Monitor{
		cfg:       cfg,
		sessions:  opts.Sessions,
		cameras:   opts.Cameras,
		prober:    prober,
		sampler:   sampler,
		events:    opts.Events,
		records:   streams.NewWriteBack(opts.Store, logger, 64),
		deduper:   NewDeduper(cfg.DedupeWindow, now),
		now:       now,
		logger:    logger,
		snapshots: make(map[string]Snapshot),
	}
}

// Run starts the three check loops and blocks until ctx is cancelled and
// every loop has returned.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		check    func(context.Context)
	}{
		{"cameras", m.cfg.CameraInterval, m.CheckCameras},
		{"sessions", m.cfg.SessionInterval, m.CheckSessions},
		{"thresholds", m.cfg.ThresholdInterval, m.EvaluateThresholds},
	}

	for _, l := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.loop(ctx, l.name, l.interval, l.check)
		}()
	}
	m.logger.Info("Health monitor started",
		"camera_interval", m.cfg.CameraInterval,
		"session_interval", m.cfg.SessionInterval,
		"threshold_interval", m.cfg.ThresholdInterval)

	wg.Wait()
	m.records.Close()
	m.logger.Info("Health monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, name string, interval time.Duration, check func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.guard(ctx, name, check)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.guard(ctx, name, check)
		}
	}
}

// guard runs one check, containing panics to that check.
func (m *Monitor) guard(ctx context.Context, name string, check func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Health check panicked", "check", name, "panic", r)
		}
	}()
	check(ctx)
}

// RunCheck runs every check once and returns the resulting report.
func (m *Monitor) RunCheck(ctx context.Context) Report {
	m.guard(ctx, "cameras", m.CheckCameras)
	m.guard(ctx, "sessions", m.CheckSessions)
	m.guard(ctx, "thresholds", m.EvaluateThresholds)
	return m.Status()
}

// CheckCameras probes every enabled camera.
func (m *Monitor) CheckCameras(ctx context.Context) {
	if m.cameras == nil {
		return
	}
	m.cameraMu.Lock()
	defer m.cameraMu.Unlock()

	cameras := m.cameras.GetAllCameras()
	sem := make(chan struct{}, m.cfg.ProbeConcurrency)
	var wg sync.WaitGroup

	for id, cam := range cameras {
		if !cam.Enabled {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Camera probe panicked", "camera_id", id, "panic", r)
					m.record(cameraKey(id), Snapshot{Status: StatusUnhealthy, Message: "camera probe failed"})
				}
			}()

			res := probe.Camera(ctx, m.prober, cam)
			m.record(cameraKey(id), cameraSnapshot(res))
		}()
	}
	wg.Wait()

	m.prune("camera:", func(id string) bool {
		cam, ok := cameras[id]
		return ok && cam.Enabled
	})
}

func cameraSnapshot(res probe.Result) Snapshot {
	details := map[string]any{"latency_ms": res.Latency.Milliseconds()}
	if len(res.Medias) > 0 {
		details["medias"] = res.Medias
	}
	if res.Err != nil {
		details["error"] = res.Err.Error()
		if streams.HasCode(res.Err, streams.ErrCodeProbeTimeout) {
			details["code"] = streams.ErrCodeProbeTimeout
		}
		return Snapshot{Status: StatusUnhealthy, Message: "camera unreachable", Details: details}
	}
	if !res.HasVideo() {
		return Snapshot{Status: StatusUnhealthy, Message: "camera announced no video stream", Details: details}
	}
	return Snapshot{Status: StatusHealthy, Message: "camera reachable", Details: details}
}

// CheckSessions verifies each session's playlist is fresh and its camera is
// reachable, and writes measured bandwidth back to the supervisor.
func (m *Monitor) CheckSessions(_ context.Context) {
	if m.sessions == nil {
		return
	}
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	dir := m.sessions.OutputDir()
	live := make(map[string]bool)

	for _, st := range m.sessions.ActiveSessions() {
		live[st.SessionID] = true
		snap := m.sessionSnapshot(dir, st)
		m.record(streamKey(st.SessionID), snap)
	}

	m.prune("stream:", func(id string) bool { return live[id] })
}

func (m *Monitor) sessionSnapshot(dir string, st streams.SessionStatus) Snapshot {
	details := map[string]any{"state": string(st.State), "retry_count": st.RetryCount}

	switch st.State {
	case streams.StateError:
		details["error"] = st.LastError
		return Snapshot{Status: StatusUnhealthy, Message: "session failed", Details: details}
	case streams.StateStarting, streams.StateStopping:
		return Snapshot{Status: StatusHealthy, Message: "session " + string(st.State), Details: details}
	}

	now := m.now()
	playlist := filepath.Join(dir, ffmpeg.PlaylistName(st.OutputKey))
	info, err := os.Stat(playlist)
	if err != nil {
		details["error"] = err.Error()
		return Snapshot{Status: StatusUnhealthy, Message: "playlist missing", Details: details}
	}
	age := now.Sub(info.ModTime())
	details["playlist_age_s"] = age.Seconds()

	if kbps, ok := m.newestSegmentKbps(dir, st.OutputKey); ok {
		details["bandwidth_kbps"] = kbps
		m.sessions.RecordMeasurement(st.SessionID, kbps)
	}

	if age > m.cfg.RecencyWindow {
		return Snapshot{Status: StatusUnhealthy,
			Message: fmt.Sprintf("playlist not refreshed for %s", age.Truncate(time.Second)), Details: details}
	}

	m.mu.RLock()
	cam, checked := m.snapshots[cameraKey(st.SessionID)]
	m.mu.RUnlock()
	if checked && !cam.Healthy() {
		return Snapshot{Status: StatusUnhealthy, Message: "camera unreachable", Details: details}
	}
	return Snapshot{Status: StatusHealthy, Message: "stream live", Details: details}
}

// newestSegmentKbps estimates bandwidth from the newest segment's size.
func (m *Monitor) newestSegmentKbps(dir, key string) (float64, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, key+"_*.ts"))
	if err != nil || len(matches) == 0 {
		return 0, false
	}

	var newest os.FileInfo
	for _, path := range matches {
		if !streams.IsSegment(key, filepath.Base(path)) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == nil || info.ModTime().After(newest.ModTime()) {
			newest = info
		}
	}
	if newest == nil {
		return 0, false
	}
	return float64(newest.Size()) * 8 / float64(m.cfg.SegmentSeconds) / 1000, true
}

// EvaluateThresholds samples system and session metrics and raises alerts.
func (m *Monitor) EvaluateThresholds(_ context.Context) {
	m.thresholdMu.Lock()
	defer m.thresholdMu.Unlock()

	var counts SessionCounts
	dir := "/"
	if m.sessions != nil {
		dir = m.sessions.OutputDir()
		for _, st := range m.sessions.ActiveSessions() {
			counts.Total++
			switch st.State {
			case streams.StateActive:
				counts.Active++
			case streams.StateError:
				counts.Failed++
			}
		}
	}

	sample, err := m.sampler.Sample(dir)
	if err != nil {
		m.logger.Warn("System sampling failed", "error", err)
	}

	var errorRate float64
	if counts.Total > 0 {
		errorRate = float64(counts.Failed) / float64(counts.Total) * 100
	}

	th := m.cfg.Thresholds
	var raised []Alert
	if err == nil {
		raised = appendPercentAlert(raised, AlertCPUHigh, "CPU usage", sample.CPUPercent, th.CPUPercent)
		raised = appendPercentAlert(raised, AlertMemoryHigh, "memory usage", sample.MemoryPercent, th.MemoryPercent)
		raised = appendPercentAlert(raised, AlertDiskHigh, "segment disk usage", sample.DiskPercent, th.DiskPercent)
	}
	raised = appendPercentAlert(raised, AlertErrorRateHigh, "session error rate", errorRate, th.ErrorRatePercent)
	if th.FailedSessions > 0 && counts.Failed >= th.FailedSessions {
		severity := SeverityWarning
		if counts.Failed >= 2*th.FailedSessions {
			severity = SeverityCritical
		}
		raised = append(raised, Alert{
			Type:      AlertFailedSessions,
			Severity:  severity,
			Message:   fmt.Sprintf("%d sessions failed", counts.Failed),
			Value:     float64(counts.Failed),
			Threshold: float64(th.FailedSessions),
		})
	}

	now := m.now()
	for _, a := range raised {
		a.DedupeKey = a.Type
		a.Timestamp = now
		m.emit(a)
	}

	metrics.SetSystemUsage("cpu", sample.CPUPercent)
	metrics.SetSystemUsage("memory", sample.MemoryPercent)
	metrics.SetSystemUsage("disk", sample.DiskPercent)

	systemSnap := Snapshot{Status: StatusHealthy, Message: "within thresholds", Details: map[string]any{
		"cpu_percent":        sample.CPUPercent,
		"memory_percent":     sample.MemoryPercent,
		"disk_percent":       sample.DiskPercent,
		"error_rate_percent": errorRate,
		"failed_sessions":    counts.Failed,
	}}
	if len(raised) > 0 {
		types := make([]string, 0, len(raised))
		for _, a := range raised {
			types = append(types, a.Type)
		}
		systemSnap.Status = StatusUnhealthy
		systemSnap.Message = "thresholds exceeded: " + strings.Join(types, ", ")
	}
	if err != nil {
		systemSnap.Status = StatusUnhealthy
		systemSnap.Message = "system sampling failed"
		systemSnap.Details["error"] = err.Error()
	}

	m.mu.Lock()
	m.system = sample
	m.counts = counts
	m.mu.Unlock()
	m.record("system", systemSnap)

	overall, unhealthy, total := m.overall()
	metrics.SetOverallHealth(overall)
	m.publish(events.HealthSummaryEvent{
		Overall:        overall,
		Unhealthy:      unhealthy,
		Total:          total,
		ActiveSessions: counts.Active,
		FailedSessions: counts.Failed,
		System: map[string]float64{
			"cpu_percent":        sample.CPUPercent,
			"memory_percent":     sample.MemoryPercent,
			"disk_percent":       sample.DiskPercent,
			"error_rate_percent": errorRate,
		},
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// appendPercentAlert raises an alert when value reaches threshold. It turns
// critical halfway between the threshold and 100%.
func appendPercentAlert(alerts []Alert, alertType, label string, value, threshold float64) []Alert {
	if threshold <= 0 || value < threshold {
		return alerts
	}
	severity := SeverityWarning
	if value >= threshold+(100-threshold)/2 {
		severity = SeverityCritical
	}
	return append(alerts, Alert{
		Type:      alertType,
		Severity:  severity,
		Message:   fmt.Sprintf("%s %.1f%% exceeds %.0f%%", label, value, threshold),
		Value:     value,
		Threshold: threshold,
	})
}

// emit forwards an alert unless its key was emitted within the dedupe window.
func (m *Monitor) emit(a Alert) {
	if !m.deduper.Allow(a.DedupeKey) {
		metrics.IncAlertSuppressed(a.Type)
		m.logger.Debug("Alert suppressed", "type", a.Type, "value", a.Value)
		return
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > maxRecentAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxRecentAlerts:]
	}
	m.mu.Unlock()

	metrics.IncAlert(a.Type, a.Severity)
	m.logger.Warn("Alert raised", "type", a.Type, "severity", a.Severity, "value", a.Value, "threshold", a.Threshold)
	m.records.Append(streams.Record{
		Time:    a.Timestamp,
		Level:   a.Severity,
		Source:  "health",
		Message: a.Message,
		Fields:  map[string]string{"type": a.Type},
	})
	m.publish(events.AlertEvent{
		AlertType: a.Type,
		Severity:  a.Severity,
		Message:   a.Message,
		Value:     a.Value,
		Threshold: a.Threshold,
		DedupeKey: a.DedupeKey,
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
	})
}

// record stores a snapshot and publishes it.
func (m *Monitor) record(key string, snap Snapshot) {
	snap.Key = key
	snap.CheckedAt = m.now()

	m.mu.Lock()
	m.snapshots[key] = snap
	m.mu.Unlock()

	metrics.SetCheckResult(key, snap.Healthy())
	m.publish(events.HealthSnapshotEvent{
		Key:       key,
		Status:    snap.Status,
		Message:   snap.Message,
		Details:   snap.Details,
		CheckedAt: snap.CheckedAt.UTC().Format(time.RFC3339),
	})
}

// prune drops snapshots under prefix whose id no longer qualifies.
func (m *Monitor) prune(prefix string, keep func(id string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.snapshots {
		id, ok := strings.CutPrefix(key, prefix)
		if ok && !keep(id) {
			delete(m.snapshots, key)
			metrics.DeleteCheckResult(key)
		}
	}
}

// Overall aggregates all snapshots: healthy with none unhealthy, warning with
// one or two unhealthy making up at most half, critical otherwise.
func (m *Monitor) Overall() string {
	overall, _, _ := m.overall()
	return overall
}

func (m *Monitor) overall() (level string, unhealthy, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total = len(m.snapshots)
	for _, s := range m.snapshots {
		if !s.Healthy() {
			unhealthy++
		}
	}
	return classify(unhealthy, total), unhealthy, total
}

func classify(unhealthy, total int) string {
	switch {
	case unhealthy == 0:
		return OverallHealthy
	case unhealthy <= 2 && unhealthy*2 <= total:
		return OverallWarning
	default:
		return OverallCritical
	}
}

// Status returns the overall level, all snapshots ordered by key and the
// recent alerts.
func (m *Monitor) Status() Report {
	overall := m.Overall()

	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Key < snaps[j].Key })

	return Report{
		Overall:   overall,
		Snapshots: snaps,
		Alerts:    append([]Alert(nil), m.alerts...),
		System:    m.system,
		Sessions:  m.counts,
	}
}

// Snapshot returns the latest snapshot for key.
func (m *Monitor) Snapshot(key string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[key]
	return s, ok
}

func (m *Monitor) publish(ev events.Event) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}

func cameraKey(id string) string { return "camera:" + id }
func streamKey(id string) string { return "stream:" + id }
