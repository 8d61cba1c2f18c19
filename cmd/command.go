package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/streams"
)

// CreateCommandCmd creates the command command, which prints the transcoder
// invocation a camera would be started with.
func CreateCommandCmd() *cobra.Command {
	var (
		flags     commonFlags
		outputDir string
		quality   string
	)

	cmd := &cobra.Command{
		Use:   "command [camera-id]",
		Short: "Print the ffmpeg command for a camera",
		Long:  `Builds the transcoder command line for the camera without running it. Credentials are masked.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.initLogging()
			logger := logging.GetLogger("main").With("camera_id", args[0])

			_, cam, err := flags.lookupCamera(args[0])
			if err != nil {
				return fail(logger, "Camera lookup failed", err)
			}

			cfg := cam.SessionConfig()
			if quality != "" {
				cfg.Quality = quality
			}

			sup := streams.NewSupervisor(streams.Options{OutputDir: outputDir})
			defer func() { _ = sup.Close(context.Background()) }()
			argv, err := sup.Command(cfg)
			if err != nil {
				return fail(logger, "Failed to build command", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ffmpeg.CommandString(argv))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "/var/lib/camfleet/hls", "HLS output directory")
	cmd.Flags().StringVar(&quality, "quality", "", "Override the camera's quality tier")

	return cmd
}
