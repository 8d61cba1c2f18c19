package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/camfleet/cmd"
	"github.com/smazurov/camfleet/internal/api"
	"github.com/smazurov/camfleet/internal/config"
	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/health"
	"github.com/smazurov/camfleet/internal/hub"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/metrics/exporters"
	"github.com/smazurov/camfleet/internal/probe"
	"github.com/smazurov/camfleet/internal/streams"
	"github.com/smazurov/camfleet/internal/streams/store"
	"github.com/smazurov/camfleet/internal/systemd"
	"github.com/smazurov/camfleet/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port        string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AllowOrigin string `help:"CORS allowed origin" default:"*" toml:"server.allow_origin" env:"SERVER_ALLOW_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Streams settings
	StreamsCamerasFile    string `help:"Camera definitions file" default:"cameras.toml" toml:"streams.cameras_file" env:"STREAMS_CAMERAS_FILE"`
	StreamsStateFile      string `help:"Runtime state file, defaults next to the cameras file" default:"" toml:"streams.state_file" env:"STREAMS_STATE_FILE"`
	StreamsOutputDir      string `help:"HLS output directory" default:"/var/lib/camfleet/hls" toml:"streams.output_dir" env:"STREAMS_OUTPUT_DIR"`
	StreamsActivation     string `help:"Activation mode (output, segment)" default:"output" toml:"streams.activation" env:"STREAMS_ACTIVATION"`
	StreamsMaxRetries     int    `help:"Automatic restarts before a session fails" default:"3" toml:"streams.max_retries" env:"STREAMS_MAX_RETRIES"`
	StreamsRetryDelay     string `help:"Base retry delay, attempt n waits n times this" default:"5s" toml:"streams.retry_delay" env:"STREAMS_RETRY_DELAY"`
	StreamsSegmentSeconds int    `help:"HLS segment duration" default:"2" toml:"streams.segment_seconds" env:"STREAMS_SEGMENT_SECONDS"`
	StreamsPlaylistSize   int    `help:"HLS playlist length" default:"6" toml:"streams.playlist_size" env:"STREAMS_PLAYLIST_SIZE"`

	// Health settings
	HealthProbeMode         string `help:"Camera probe (rtsp, ffprobe)" default:"rtsp" toml:"health.probe_mode" env:"HEALTH_PROBE_MODE"`
	HealthProbeTimeout      string `help:"Camera probe timeout" default:"10s" toml:"health.probe_timeout" env:"HEALTH_PROBE_TIMEOUT"`
	HealthCameraInterval    string `help:"Camera check interval" default:"10m" toml:"health.camera_interval" env:"HEALTH_CAMERA_INTERVAL"`
	HealthSessionInterval   string `help:"Session check interval" default:"2m" toml:"health.session_interval" env:"HEALTH_SESSION_INTERVAL"`
	HealthThresholdInterval string `help:"Threshold check interval" default:"60s" toml:"health.threshold_interval" env:"HEALTH_THRESHOLD_INTERVAL"`
	HealthDedupeWindow      string `help:"Suppress repeated alerts within this window" default:"15m" toml:"health.dedupe_window" env:"HEALTH_DEDUPE_WINDOW"`
	HealthCPUPercent        int    `help:"CPU alert threshold" default:"80" toml:"health.cpu_percent" env:"HEALTH_CPU_PERCENT"`
	HealthMemoryPercent     int    `help:"Memory alert threshold" default:"85" toml:"health.memory_percent" env:"HEALTH_MEMORY_PERCENT"`
	HealthDiskPercent       int    `help:"Disk alert threshold" default:"90" toml:"health.disk_percent" env:"HEALTH_DISK_PERCENT"`
	HealthErrorRatePercent  int    `help:"Session error rate alert threshold" default:"25" toml:"health.error_rate_percent" env:"HEALTH_ERROR_RATE_PERCENT"`
	HealthFailedSessions    int    `help:"Failed session count alert threshold" default:"3" toml:"health.failed_sessions" env:"HEALTH_FAILED_SESSIONS"`

	// Hub settings
	HubJWTSecret         string `help:"HS256 secret for websocket tokens, empty disables /ws" default:"" toml:"hub.jwt_secret" env:"HUB_JWT_SECRET"`
	HubJWTIssuer         string `help:"Expected token issuer" default:"camfleet" toml:"hub.jwt_issuer" env:"HUB_JWT_ISSUER"`
	HubAllowedOrigins    string `help:"Comma-separated websocket origins, empty allows any" default:"" toml:"hub.allowed_origins" env:"HUB_ALLOWED_ORIGINS"`
	HubHeartbeatInterval string `help:"Websocket ping interval" default:"30s" toml:"hub.heartbeat_interval" env:"HUB_HEARTBEAT_INTERVAL"`
	HubIdleTimeout       string `help:"Close connections idle this long" default:"5m" toml:"hub.idle_timeout" env:"HUB_IDLE_TIMEOUT"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Expose /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStreams string `help:"Streams logging level" default:"info" toml:"logging.streams" env:"LOGGING_STREAMS"`
	LoggingFFmpeg  string `help:"Transcoder output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingHealth  string `help:"Health monitor logging level" default:"info" toml:"logging.health" env:"LOGGING_HEALTH"`
	LoggingHub     string `help:"Live events logging level" default:"info" toml:"logging.hub" env:"LOGGING_HUB"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func main() {
	// Create Huma CLI. Declared first so the callback can reach the root
	// command for flag precedence.
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"streams": opts.LoggingStreams,
				"ffmpeg":  opts.LoggingFFmpeg,
				"health":  opts.LoggingHealth,
				"hub":     opts.LoggingHub,
				"api":     opts.LoggingAPI,
				"config":  opts.LoggingConfig,
			},
		})

		logger := logging.GetLogger("main")
		logger.Info("camfleet starting", "version", version.String())

		// Create event bus for in-process event handling
		eventBus := events.New()

		cameraStore := store.NewTOML(opts.StreamsCamerasFile, opts.StreamsStateFile)
		if loadErr := cameraStore.Load(); loadErr != nil {
			logger.Warn("Failed to load cameras, starting with none", "error", loadErr, "file", opts.StreamsCamerasFile)
		}

		if mkErr := os.MkdirAll(opts.StreamsOutputDir, 0o755); mkErr != nil {
			logger.Error("Cannot create HLS output directory", "dir", opts.StreamsOutputDir, "error", mkErr)
			os.Exit(1)
		}

		supervisor := streams.NewSupervisor(streams.Options{
			Store:          cameraStore,
			Events:         eventBus,
			OutputDir:      opts.StreamsOutputDir,
			ActivationMode: opts.StreamsActivation,
			MaxRetries:     opts.StreamsMaxRetries,
			RetryBaseDelay: duration(opts.StreamsRetryDelay, 5*time.Second),
			SegmentSeconds: opts.StreamsSegmentSeconds,
			PlaylistSize:   opts.StreamsPlaylistSize,
		})

		monitor := health.New(health.Options{
			Config: health.Config{
				CameraInterval:    duration(opts.HealthCameraInterval, 10*time.Minute),
				SessionInterval:   duration(opts.HealthSessionInterval, 2*time.Minute),
				ThresholdInterval: duration(opts.HealthThresholdInterval, time.Minute),
				DedupeWindow:      duration(opts.HealthDedupeWindow, health.DefaultDedupeWindow),
				SegmentSeconds:    opts.StreamsSegmentSeconds,
				Thresholds: health.Thresholds{
					CPUPercent:       float64(opts.HealthCPUPercent),
					MemoryPercent:    float64(opts.HealthMemoryPercent),
					DiskPercent:      float64(opts.HealthDiskPercent),
					ErrorRatePercent: float64(opts.HealthErrorRatePercent),
					FailedSessions:   opts.HealthFailedSessions,
				},
			},
			Sessions: supervisor,
			Cameras:  cameraStore,
			Prober:   probe.New(opts.HealthProbeMode, duration(opts.HealthProbeTimeout, probe.DefaultTimeout)),
			Events:   eventBus,
			Store:    cameraStore,
		})

		// Live event fan-out: bus -> registry -> websocket clients
		var registry *hub.Registry
		apiOpts := api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			AllowOrigin:  opts.AllowOrigin,
			Sessions:     supervisor,
			Health:       monitor,
			Bus:          eventBus,
			HLSDir:       opts.StreamsOutputDir,
		}
		if opts.HubJWTSecret != "" {
			registry = hub.NewRegistry(hub.NewJWTAuthenticator(opts.HubJWTSecret, opts.HubJWTIssuer), hub.Options{
				HeartbeatInterval: duration(opts.HubHeartbeatInterval, 30*time.Second),
				IdleTimeout:       duration(opts.HubIdleTimeout, 5*time.Minute),
			})
			hub.NewBridge(registry).Attach(eventBus)
			apiOpts.WebsocketHandler = hub.NewHandler(registry, splitList(opts.HubAllowedOrigins))
		} else {
			logger.Warn("No hub JWT secret configured, websocket live events disabled")
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler(nil)
		}

		server := api.NewServer(apiOpts)

		// Follow edits of the camera file
		watcher := config.NewConfigWatcher(cameraStore.ConfigPath(), func(string) (map[string]streams.CameraSpec, error) {
			if loadErr := cameraStore.Load(); loadErr != nil {
				return nil, loadErr
			}
			return cameraStore.GetAllCameras(), nil
		}, logging.GetLogger("config"))
		watcher.OnReload(func(cameras map[string]streams.CameraSpec) {
			logger.Info("Camera file changed, reconciling sessions", "cameras", len(cameras))
			if recErr := supervisor.Reconcile(cameras); recErr != nil {
				logger.Warn("Reconcile finished with errors", "error", recErr)
			}
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if startErr := supervisor.StartEnabled(); startErr != nil {
				logger.Warn("Some cameras failed to start", "error", startErr)
			}
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start camera watcher, hot-reload disabled", "error", startErr)
			}

			go monitor.Run(ctx)
			if registry != nil {
				go registry.Run(ctx)
			}
			go systemd.RunWatchdog(ctx, logger, nil)

			active, _ := supervisor.Counts()
			_, _ = systemd.Ready()
			_, _ = systemd.Status("%d sessions active", active)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = systemd.Stopping()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer shutdownCancel()

			if stopErr := server.Shutdown(shutdownCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			_ = watcher.Stop()

			// Stop transcoders after the HTTP server stops accepting commands
			if stopErr := supervisor.Close(shutdownCtx); stopErr != nil {
				logger.Error("Error stopping sessions", "error", stopErr)
			}
			cancel()
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateCommandCmd())
	cli.Root().AddCommand(cmd.CreateRunCmd())
	cli.Root().AddCommand(cmd.CreateTokenCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}

// duration parses a duration option, falling back to def when unparsable.
func duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
