package models

import (
	"github.com/smazurov/camfleet/internal/version"
)

type VersionResponse struct {
	Body version.Info
}

// LogLevelInput changes one module's log level.
type LogLevelInput struct {
	Module string `path:"module" example:"streams" doc:"Logger module name"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

type LogLevelResponse struct {
	Body struct {
		Module string `json:"module" example:"streams"`
		Level  string `json:"level" example:"debug"`
	}
}
