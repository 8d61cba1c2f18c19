package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camfleet/internal/api/models"
	"github.com/smazurov/camfleet/internal/streams"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "All registered stream sessions with their state and last measured throughput",
		Tags:        []string{"sessions"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SessionListResponse, error) {
		sessions := s.options.Sessions.ActiveSessions()
		active, failed := s.options.Sessions.Counts()
		return &models.SessionListResponse{
			Body: models.SessionListData{
				Sessions: sessions,
				Count:    len(sessions),
				Active:   active,
				Failed:   failed,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{session_id}",
		Summary:     "Get Session",
		Description: "Status of one session",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionIDInput) (*models.SessionResponse, error) {
		status, ok := s.options.Sessions.Status(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("session not found: " + input.SessionID)
		}
		return &models.SessionResponse{Body: status}, nil
	})

	s.registerCommand("start-session", "start", "Start Session",
		"Start transcoding a configured camera", s.options.Sessions.StartCamera)
	s.registerCommand("stop-session", "stop", "Stop Session",
		"Stop a session and remove its segments. Stopping an inactive session is a no-op", s.options.Sessions.Stop)
	s.registerCommand("restart-session", "restart", "Restart Session",
		"Stop and start a session with its current configuration", s.options.Sessions.Restart)
}

func (s *Server) registerCommand(opID, verb, summary, description string, run func(string) streams.Result) {
	huma.Register(s.api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/api/sessions/{session_id}/" + verb,
		Summary:     summary,
		Description: description,
		Tags:        []string{"sessions"},
		Errors:      []int{400, 401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionIDInput) (*models.CommandResponse, error) {
		res := run(input.SessionID)
		if !res.OK {
			return nil, mapResultError(res)
		}
		return &models.CommandResponse{
			Body: models.CommandData{
				SessionID: res.SessionID,
				OK:        res.OK,
				State:     res.State,
				Noop:      res.Noop,
			},
		}, nil
	})
}

// mapResultError converts a failed command result into an HTTP error.
func mapResultError(res streams.Result) error {
	msg := res.SessionID
	if res.Err != nil {
		msg = res.Err.Error()
	}

	switch res.Code() {
	case streams.ErrCodeConfigInvalid:
		return huma.Error400BadRequest(msg, res.Err)
	case streams.ErrCodeCameraNotFound:
		return huma.Error404NotFound(msg, res.Err)
	case streams.ErrCodeAlreadyActive:
		return huma.Error409Conflict(msg, res.Err)
	case streams.ErrCodeSpawnFailure, streams.ErrCodeAbnormalExit:
		return huma.Error500InternalServerError(msg, res.Err)
	}
	if res.Err == nil {
		return huma.Error500InternalServerError("command failed", errors.New(msg))
	}
	return huma.Error500InternalServerError(msg, res.Err)
}
