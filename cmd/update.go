package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var (
		opts      updater.Options
		checkOnly bool
		rollback  bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install the latest camfleet release",
		Long: `Replaces the camfleet binary with the latest GitHub release, keeping the ` +
			`previous binary for --rollback. Restart the service afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.GetLogger("updater")
			out := cmd.OutOrStdout()

			up, err := updater.New(opts)
			if err != nil {
				return fail(logger, "Updater unavailable", err)
			}

			switch {
			case rollback:
				b, err := up.Rollback()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "restored %s, restart the service to run it\n", b.Version)
				return nil

			case checkOnly:
				info, _, err := up.Check(cmd.Context())
				if err != nil {
					return err
				}
				if info.UpdateAvailable {
					fmt.Fprintf(out, "update available: %s -> %s\n%s\n", info.CurrentVersion, info.LatestVersion, info.ReleaseURL)
				} else {
					fmt.Fprintf(out, "up to date (%s)\n", info.CurrentVersion)
				}
				return nil
			}

			info, err := up.Apply(cmd.Context())
			if updater.HasCode(err, updater.ErrCodeNoUpdate) {
				fmt.Fprintf(out, "up to date (%s)\n", info.CurrentVersion)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "updated %s -> %s, restart the service to run it\n", info.CurrentVersion, info.LatestVersion)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Repository, "repo", "smazurov/camfleet", "GitHub repository")
	cmd.Flags().BoolVar(&opts.Prerelease, "prerelease", false, "Include prereleases")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", "/var/lib/camfleet/backup", "Where the previous binary is kept")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update exists")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the previous binary")

	return cmd
}
