package streams

import (
	"errors"
	"fmt"
)

// StreamError represents a domain-specific error.
type StreamError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	// ErrCodeConfigInvalid rejects a start before anything is spawned.
	ErrCodeConfigInvalid = "CONFIG_INVALID"
	// ErrCodeAlreadyActive rejects a start for a starting or active session.
	ErrCodeAlreadyActive = "ALREADY_ACTIVE"
	// ErrCodeSpawnFailure means the transcoder could not be executed.
	ErrCodeSpawnFailure = "SPAWN_FAILURE"
	// ErrCodeAbnormalExit means the transcoder exited with a failure code.
	ErrCodeAbnormalExit = "ABNORMAL_EXIT"
	// ErrCodeProbeTimeout means a camera probe did not answer in time.
	ErrCodeProbeTimeout = "PROBE_TIMEOUT"
	// ErrCodeRegistryInconsistency marks commands for unknown sessions.
	ErrCodeRegistryInconsistency = "REGISTRY_INCONSISTENCY"
	// ErrCodeCameraNotFound means no camera configuration exists for an id.
	ErrCodeCameraNotFound = "CAMERA_NOT_FOUND"
)

// NewStreamError creates a new stream error.
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is a StreamError with the given code.
func HasCode(err error, code string) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Code == code
}
