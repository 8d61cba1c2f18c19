// Package cmd holds the camfleet subcommands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfleet/internal/config"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/streams"
	"github.com/smazurov/camfleet/internal/streams/store"
)

// commonFlags are shared by the camera subcommands.
type commonFlags struct {
	configFile  string
	camerasFile string
	logJSON     bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "config.toml", "Path to configuration file (logging section)")
	cmd.Flags().StringVar(&f.camerasFile, "cameras", "cameras.toml", "Path to camera definitions")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "Use JSON log format")
}

func (f *commonFlags) initLogging() {
	cfg := config.LoadLoggingConfig(f.configFile)
	if f.logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
}

// lookupCamera loads the camera file and returns the camera with id.
func (f *commonFlags) lookupCamera(id string) (store.Store, streams.CameraSpec, error) {
	s := store.NewTOML(f.camerasFile, "")
	if err := s.Load(); err != nil {
		return nil, streams.CameraSpec{}, fmt.Errorf("load %s: %w", f.camerasFile, err)
	}
	cam, ok := s.GetCamera(id)
	if !ok {
		return nil, streams.CameraSpec{}, streams.NewStreamError(streams.ErrCodeCameraNotFound,
			fmt.Sprintf("camera %q not found in %s", id, f.camerasFile), nil)
	}
	return s, cam, nil
}

func fail(logger *slog.Logger, msg string, err error) error {
	logger.Error(msg, "error", err)
	return err
}
