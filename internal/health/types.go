package health

import (
	"time"
)

// Snapshot statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Overall health levels.
const (
	OverallHealthy  = "healthy"
	OverallWarning  = "warning"
	OverallCritical = "critical"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types, also used as dedupe keys.
const (
	AlertCPUHigh        = "cpu_high"
	AlertMemoryHigh     = "memory_high"
	AlertDiskHigh       = "disk_high"
	AlertErrorRateHigh  = "error_rate_high"
	AlertFailedSessions = "failed_sessions"
)

// Snapshot is the latest result of one check for one resource.
type Snapshot struct {
	Key       string         `json:"key" example:"camera:cam1" doc:"camera:<id>, stream:<id> or system"`
	Status    string         `json:"status" example:"healthy" doc:"healthy or unhealthy"`
	Message   string         `json:"message" doc:"Human readable result"`
	Details   map[string]any `json:"details,omitempty" doc:"Structured check context"`
	CheckedAt time.Time      `json:"checked_at" doc:"Check completion time"`
}

// Healthy reports whether the snapshot passed.
func (s Snapshot) Healthy() bool {
	return s.Status == StatusHealthy
}

// Alert is a threshold violation.
type Alert struct {
	Type      string    `json:"type" example:"cpu_high" doc:"Alert type"`
	Severity  string    `json:"severity" example:"warning" doc:"warning or critical"`
	Message   string    `json:"message" doc:"Alert description"`
	Value     float64   `json:"value" doc:"Observed value"`
	Threshold float64   `json:"threshold" doc:"Configured threshold"`
	DedupeKey string    `json:"dedupe_key" doc:"Suppression key"`
	Timestamp time.Time `json:"timestamp" doc:"Alert time"`
}

// Thresholds configures the threshold check.
type Thresholds struct {
	CPUPercent       float64 `toml:"cpu_percent"`
	MemoryPercent    float64 `toml:"memory_percent"`
	DiskPercent      float64 `toml:"disk_percent"`
	ErrorRatePercent float64 `toml:"error_rate_percent"`
	FailedSessions   int     `toml:"failed_sessions"`
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:       80,
		MemoryPercent:    85,
		DiskPercent:      90,
		ErrorRatePercent: 25,
		FailedSessions:   3,
	}
}

// Report is the pull view of the monitor.
type Report struct {
	Overall   string        `json:"overall" example:"healthy" doc:"healthy, warning or critical"`
	Snapshots []Snapshot    `json:"snapshots" doc:"Latest snapshot per resource"`
	Alerts    []Alert       `json:"alerts" doc:"Recently emitted alerts, newest last"`
	System    SystemSample  `json:"system" doc:"Last sampled system usage"`
	Sessions  SessionCounts `json:"sessions" doc:"Session counters at the last evaluation"`
}

// SessionCounts summarizes the registry.
type SessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Failed int `json:"failed"`
}
