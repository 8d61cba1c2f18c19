// Package logging provides structured logging with per-module log levels.
//
// Loggers are plain *slog.Logger values tagged with a "module" attribute.
// Output goes to stdout (text or json) and, on hosts running journald, to
// the systemd journal under the identifier "camfleet".
//
// Initialize once at startup, then hand out module loggers:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"streams": "debug",
//			"hub":     "warn",
//		},
//	})
//
//	logger := logging.GetLogger("streams").With("session_id", id)
//	logger.Info("Session started")
//
// Loggers obtained before Initialize keep working; Initialize re-levels them.
// SetModuleLevel adjusts a single module at runtime.
//
// Journal entries carry attributes as upper-cased fields:
//
//	journalctl -t camfleet MODULE=health
//	journalctl -t camfleet SESSION_ID=cam1 -f
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	ffmpeg = "warn"
//	hub = "debug"
package logging
