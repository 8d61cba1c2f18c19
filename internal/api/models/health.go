package models

import (
	"github.com/smazurov/camfleet/internal/health"
)

type HealthReportResponse struct {
	Body health.Report
}

// LivenessData is the unauthenticated health probe body.
type LivenessData struct {
	Status  string `json:"status" example:"healthy" doc:"healthy, warning or critical"`
	Version string `json:"version" example:"1.2.0" doc:"Service version"`
}

type LivenessResponse struct {
	Status int
	Body   LivenessData
}
