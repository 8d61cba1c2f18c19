// Package api exposes the session supervisor and health monitor over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/camfleet/internal/api/models"
	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/health"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/streams"
	"github.com/smazurov/camfleet/internal/version"
)

// Sessions is the command surface of the supervisor.
type Sessions interface {
	StartCamera(id string) streams.Result
	Stop(id string) streams.Result
	Restart(id string) streams.Result
	ActiveSessions() []streams.SessionStatus
	Status(id string) (streams.SessionStatus, bool)
	Counts() (active, failed int)
}

// Health is the pull side of the health monitor.
type Health interface {
	RunCheck(ctx context.Context) health.Report
	Status() health.Report
	Overall() string
}

// Options wires the server's collaborators. Nil handlers disable their route.
type Options struct {
	AuthUsername string
	AuthPassword string
	// AllowOrigin is sent as Access-Control-Allow-Origin. Default "*".
	AllowOrigin string

	Sessions Sessions
	Health   Health
	// Bus feeds the SSE event stream.
	Bus *events.Bus

	// HLSDir is served read-only under /hls/.
	HLSDir            string
	WebsocketHandler  http.Handler
	PrometheusHandler http.Handler
}

// Server is the HTTP front of the service.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    Options
	logger     *slog.Logger
}

// NewServer builds the mux and registers every route.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	cors := DefaultCORSConfig()
	if opts.AllowOrigin != "" {
		cors.AllowOrigin = opts.AllowOrigin
	}
	AddCORSHandler(mux, cors)

	config := huma.DefaultConfig("camfleet API", version.String())
	config.Info.Description = "Camera fleet stream supervisor: session control, health and live events"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	s := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(cors))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(BasicAuthMiddleware(api, opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	if opts.WebsocketHandler != nil {
		mux.Handle("GET /ws", opts.WebsocketHandler)
	}
	if opts.HLSDir != "" {
		mux.Handle("GET /hls/", http.StripPrefix("/hls/", hlsHandler(opts.HLSDir, cors.AllowOrigin)))
	}

	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma API, for tests and extra registrations.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Long-lived streams (SSE, websocket) are cut when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Build and version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerSessionRoutes()
	s.registerHealthRoutes()
	s.registerSystemRoutes()
	s.registerEventRoutes()
}

// withAuth marks an operation as requiring basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
