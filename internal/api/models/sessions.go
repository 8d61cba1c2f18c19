package models

import (
	"github.com/smazurov/camfleet/internal/streams"
)

// SessionIDInput addresses one session.
type SessionIDInput struct {
	SessionID string `path:"session_id" example:"cam1" doc:"Camera or session identifier" minLength:"1" maxLength:"64"`
}

type SessionListData struct {
	Sessions []streams.SessionStatus `json:"sessions" doc:"Registered sessions ordered by id"`
	Count    int                     `json:"count" example:"2" doc:"Number of sessions"`
	Active   int                     `json:"active" example:"1" doc:"Sessions in the active state"`
	Failed   int                     `json:"failed" example:"0" doc:"Sessions in the error state"`
}

type SessionListResponse struct {
	Body SessionListData
}

type SessionResponse struct {
	Body streams.SessionStatus
}

// CommandData is the outcome of start, stop and restart.
type CommandData struct {
	SessionID string        `json:"session_id" example:"cam1" doc:"Session identifier"`
	OK        bool          `json:"ok" example:"true" doc:"Whether the command succeeded"`
	State     streams.State `json:"state" example:"starting" doc:"Session state after the command"`
	Noop      bool          `json:"noop,omitempty" doc:"Set when there was nothing to do"`
}

type CommandResponse struct {
	Body CommandData
}
