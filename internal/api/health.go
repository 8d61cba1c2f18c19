package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camfleet/internal/api/models"
	"github.com/smazurov/camfleet/internal/health"
	"github.com/smazurov/camfleet/internal/version"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "liveness",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Liveness",
		Description: "Overall health level. Responds 503 while the level is critical",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.LivenessResponse, error) {
		overall := s.options.Health.Overall()
		status := http.StatusOK
		if overall == health.OverallCritical {
			status = http.StatusServiceUnavailable
		}
		return &models.LivenessResponse{
			Status: status,
			Body: models.LivenessData{
				Status:  overall,
				Version: version.String(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health Report",
		Description: "Latest snapshot per camera and stream, recent alerts and sampled system usage",
		Tags:        []string{"health"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.HealthReportResponse, error) {
		return &models.HealthReportResponse{Body: s.options.Health.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "run-health-check",
		Method:      http.MethodPost,
		Path:        "/api/health/check",
		Summary:     "Run Health Check",
		Description: "Run camera, stream and threshold checks now and return the resulting report",
		Tags:        []string{"health"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.HealthReportResponse, error) {
		return &models.HealthReportResponse{Body: s.options.Health.RunCheck(ctx)}, nil
	})
}
