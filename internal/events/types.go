package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeSessionMetrics
	TypeHealthSnapshot
	TypeHealthSummary
	TypeAlert
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Session lifecycle reasons carried by SessionStateChangedEvent.
const (
	ReasonStarting = "starting"
	ReasonStarted  = "started"
	ReasonStopping = "stopping"
	ReasonStopped  = "stopped"
	ReasonEnded    = "ended"
	ReasonError    = "error"
)

// SessionStateChangedEvent is published on every session state transition.
type SessionStateChangedEvent struct {
	SessionID  string `json:"session_id" example:"cam1" doc:"Session identifier"`
	OldState   string `json:"old_state" example:"starting" doc:"Previous state"`
	NewState   string `json:"new_state" example:"active" doc:"Current state"`
	Reason     string `json:"reason" example:"started" doc:"Transition reason"`
	OutputKey  string `json:"output_key,omitempty" example:"cam1" doc:"Segment file prefix"`
	ExitCode   *int   `json:"exit_code,omitempty" doc:"Process exit code for exit transitions"`
	Error      string `json:"error,omitempty" doc:"Error message for error transitions"`
	RetryCount int    `json:"retry_count" example:"0" doc:"Automatic restart attempts so far"`
	Terminal   bool   `json:"terminal,omitempty" doc:"Set when no further automatic restart will happen"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// SessionMetricsEvent carries measured transcoder throughput.
type SessionMetricsEvent struct {
	SessionID   string   `json:"session_id" example:"cam1" doc:"Session identifier"`
	FPS         *float64 `json:"fps,omitempty" example:"25" doc:"Frames per second"`
	BitrateKbps *float64 `json:"bitrate_kbps,omitempty" example:"1500" doc:"Output bitrate in kbit/s"`
	Source      string   `json:"source" example:"transcoder" doc:"transcoder or health"`
	Timestamp   string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Measurement timestamp"`
}

// Type returns the event type identifier for SessionMetricsEvent.
func (e SessionMetricsEvent) Type() uint32 { return TypeSessionMetrics }

// HealthSnapshotEvent is published when a camera or stream check completes.
type HealthSnapshotEvent struct {
	Key       string         `json:"key" example:"camera:cam1" doc:"Resource key"`
	Status    string         `json:"status" example:"healthy" doc:"healthy or unhealthy"`
	Message   string         `json:"message" doc:"Human readable result"`
	Details   map[string]any `json:"details,omitempty" doc:"Structured check context"`
	CheckedAt string         `json:"checked_at" example:"2025-01-27T10:30:00Z" doc:"Check completion time"`
}

// Type returns the event type identifier for HealthSnapshotEvent.
func (e HealthSnapshotEvent) Type() uint32 { return TypeHealthSnapshot }

// HealthSummaryEvent is the aggregate published after each threshold pass.
type HealthSummaryEvent struct {
	Overall        string             `json:"overall" example:"healthy" doc:"healthy, warning or critical"`
	Unhealthy      int                `json:"unhealthy" doc:"Number of unhealthy snapshots"`
	Total          int                `json:"total" doc:"Number of snapshots"`
	ActiveSessions int                `json:"active_sessions" doc:"Sessions currently active"`
	FailedSessions int                `json:"failed_sessions" doc:"Sessions currently in error"`
	System         map[string]float64 `json:"system,omitempty" doc:"Sampled system metrics"`
	Timestamp      string             `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Evaluation time"`
}

// Type returns the event type identifier for HealthSummaryEvent.
func (e HealthSummaryEvent) Type() uint32 { return TypeHealthSummary }

// AlertEvent is a threshold alert that survived deduplication.
type AlertEvent struct {
	AlertType string  `json:"type" example:"cpu_high" doc:"Alert type"`
	Severity  string  `json:"severity" example:"warning" doc:"warning or critical"`
	Message   string  `json:"message" doc:"Alert description"`
	Value     float64 `json:"value" example:"91.5" doc:"Observed value"`
	Threshold float64 `json:"threshold" example:"80" doc:"Configured threshold"`
	DedupeKey string  `json:"dedupe_key" example:"cpu_high" doc:"Suppression key"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Alert timestamp"`
}

// Type returns the event type identifier for AlertEvent.
func (e AlertEvent) Type() uint32 { return TypeAlert }
