package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfleet/internal/config"
	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/streams"
	"github.com/smazurov/camfleet/internal/streams/store"
	"github.com/smazurov/camfleet/internal/systemd"
)

// CreateRunCmd creates the run command. It supervises a single camera in the
// foreground, for running one systemd unit per camera.
func CreateRunCmd() *cobra.Command {
	var (
		flags      commonFlags
		outputDir  string
		activation string
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "run [camera-id]",
		Short: "Supervise one camera in the foreground",
		Long: `Starts the transcoder for the camera, restarts it on failure and follows changes ` +
			`to the camera file. Exits when the camera is removed or on SIGINT/SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			flags.initLogging()
			logger := logging.GetLogger("main").With("camera_id", id)

			cameraStore, cam, err := flags.lookupCamera(id)
			if err != nil {
				return fail(logger, "Camera lookup failed", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := events.New()
			unsub := bus.Subscribe(func(e events.SessionStateChangedEvent) {
				logger.Info("Session state changed", "from", e.OldState, "to", e.NewState,
					"reason", e.Reason, "retry_count", e.RetryCount)
				if e.Terminal {
					_, _ = systemd.Status("%s failed: %s", e.SessionID, e.Error)
				}
			})
			defer unsub()

			sup := streams.NewSupervisor(streams.Options{
				Store:          cameraStore,
				Events:         bus,
				OutputDir:      outputDir,
				ActivationMode: activation,
				MaxRetries:     maxRetries,
			})

			watcher := config.NewConfigWatcher(cameraStore.ConfigPath(), loadCameras, logger)
			watcher.OnReload(func(all map[string]streams.CameraSpec) {
				only := map[string]streams.CameraSpec{}
				if updated, ok := all[id]; ok {
					only[id] = updated
				} else {
					logger.Warn("Camera removed from config, shutting down")
					stop()
				}
				if err := sup.Reconcile(only); err != nil {
					logger.Warn("Reconcile failed", "error", err)
				}
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			if res := sup.Start(cam.SessionConfig()); !res.OK {
				return fail(logger, "Failed to start session", res.Err)
			}
			_, _ = systemd.Ready()
			go systemd.RunWatchdog(ctx, logger, nil)

			<-ctx.Done()
			_, _ = systemd.Stopping()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := sup.Close(shutdownCtx); err != nil {
				logger.Error("Shutdown incomplete", "error", err)
				return err
			}
			logger.Info("Run command exiting")
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "/var/lib/camfleet/hls", "HLS output directory")
	cmd.Flags().StringVar(&activation, "activation", streams.ActivationOutput, "Activation mode (output, segment)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Automatic restarts before giving up")

	return cmd
}

// loadCameras reads a fresh copy of the camera file for the watcher.
func loadCameras(path string) (map[string]streams.CameraSpec, error) {
	s := store.NewTOML(path, "")
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s.GetAllCameras(), nil
}
