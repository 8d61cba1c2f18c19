package streams

import (
	"errors"
	"time"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/process"
)

// State is the lifecycle state of a stream session.
type State string

// Session states.
const (
	StateInactive State = "inactive"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// session is a registry entry. All fields are guarded by Supervisor.mu.
type session struct {
	id        string
	config    SessionConfig
	state     State
	sourceURI string
	profile   QualityProfile
	outputKey string
	proc      *process.Process
	startedAt time.Time
	updatedAt time.Time

	retryCount int
	retryTimer *time.Timer
	lastError  error
	// explicit marks an attempt requested by a caller rather than by the
	// retry policy; reaching Active on such an attempt resets retryCount.
	explicit bool
	// generation invalidates callbacks from superseded attempts.
	generation uint64

	currentFPS       *float64
	currentBandwidth *float64
	lastMetricsEvent time.Time
	lastMeasuredAt   time.Time
}

// SessionStatus is a point-in-time copy of a registry entry.
type SessionStatus struct {
	SessionID        string         `json:"session_id" toml:"session_id"`
	State            State          `json:"state" toml:"state"`
	SourceURI        string         `json:"source_uri,omitempty" toml:"source_uri,omitempty"`
	Quality          QualityProfile `json:"quality" toml:"quality"`
	OutputKey        string         `json:"output_key,omitempty" toml:"output_key,omitempty"`
	PID              int            `json:"pid,omitempty" toml:"pid,omitempty"`
	StartedAt        time.Time      `json:"started_at,omitzero" toml:"started_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at" toml:"updated_at"`
	RetryCount       int            `json:"retry_count" toml:"retry_count"`
	LastError        string         `json:"last_error,omitempty" toml:"last_error,omitempty"`
	CurrentFPS       *float64       `json:"current_fps,omitempty" toml:"current_fps,omitempty"`
	CurrentBandwidth *float64       `json:"current_bandwidth_kbps,omitempty" toml:"current_bandwidth_kbps,omitempty"`
	LastMeasuredAt   time.Time      `json:"last_measured_at,omitzero" toml:"last_measured_at,omitempty"`
}

// status copies the entry. Caller holds Supervisor.mu.
func (s *session) status() SessionStatus {
	st := SessionStatus{
		SessionID:      s.id,
		State:          s.state,
		SourceURI:      ffmpeg.MaskCredentials(s.sourceURI),
		Quality:        s.profile,
		OutputKey:      s.outputKey,
		StartedAt:      s.startedAt,
		UpdatedAt:      s.updatedAt,
		RetryCount:     s.retryCount,
		LastMeasuredAt: s.lastMeasuredAt,
	}
	if s.proc != nil {
		st.PID = s.proc.PID()
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	if s.currentFPS != nil {
		v := *s.currentFPS
		st.CurrentFPS = &v
	}
	if s.currentBandwidth != nil {
		v := *s.currentBandwidth
		st.CurrentBandwidth = &v
	}
	return st
}

// Result is the synchronous outcome of a session command.
type Result struct {
	SessionID string `json:"session_id"`
	OK        bool   `json:"ok"`
	State     State  `json:"state"`
	// Noop is set when the command had nothing to do, e.g. stopping an
	// inactive session.
	Noop bool  `json:"noop,omitempty"`
	Err  error `json:"-"`
}

// Code returns the StreamError code of a failed result, empty on success.
func (r Result) Code() string {
	var se *StreamError
	if errors.As(r.Err, &se) {
		return se.Code
	}
	return ""
}

func ok(id string, state State) Result {
	return Result{SessionID: id, OK: true, State: state}
}

func failed(id string, state State, err error) Result {
	return Result{SessionID: id, State: state, Err: err}
}
