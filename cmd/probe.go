package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/probe"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var (
		flags   commonFlags
		mode    string
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "probe [camera-id]",
		Short: "Check that a configured camera answers",
		Long: `Opens a short diagnostic connection to the camera's RTSP source and reports ` +
			`reachability, latency and the announced media. Exits non-zero when unreachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.initLogging()
			logger := logging.GetLogger("probe").With("camera_id", args[0])

			_, cam, err := flags.lookupCamera(args[0])
			if err != nil {
				return fail(logger, "Camera lookup failed", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
			defer cancel()
			res := probe.Camera(ctx, probe.New(mode, timeout), cam)

			out := cmd.OutOrStdout()
			if asJSON {
				report := struct {
					probe.Result
					Error string `json:"error,omitempty"`
				}{Result: res}
				if res.Err != nil {
					report.Error = res.Err.Error()
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printProbe(cmd, cam.ID, res)
			}

			if !res.Reachable {
				return fmt.Errorf("camera %s unreachable: %w", cam.ID, res.Err)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", probe.ModeRTSP, "Probe implementation (rtsp, ffprobe)")
	cmd.Flags().DurationVar(&timeout, "timeout", probe.DefaultTimeout, "Probe timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func printProbe(cmd *cobra.Command, id string, res probe.Result) {
	out := cmd.OutOrStdout()
	if !res.Reachable {
		fmt.Fprintf(out, "%s: unreachable (%v)\n", id, res.Err)
		return
	}
	fmt.Fprintf(out, "%s: reachable in %s\n", id, res.Latency.Round(time.Millisecond))
	for _, m := range res.Medias {
		fmt.Fprintf(out, "  %-6s %v\n", m.Kind, m.Codecs)
	}
	if !res.HasVideo() {
		fmt.Fprintln(out, "  warning: no video stream announced")
	}
}
