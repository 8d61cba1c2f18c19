package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfleet/internal/hub"
)

// CreateTokenCmd creates the token command, which signs a websocket
// connection token with the hub secret.
func CreateTokenCmd() *cobra.Command {
	var (
		secret string
		issuer string
		name   string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue a live events connection token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("CAMFLEET_HUB_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("no secret: pass --secret or set CAMFLEET_HUB_JWT_SECRET")
			}
			if role != hub.RoleAdmin && role != hub.RoleViewer {
				return fmt.Errorf("unknown role %q", role)
			}

			auth := hub.NewJWTAuthenticator(secret, issuer)
			token, err := auth.Issue(hub.Identity{ID: args[0], Name: name, Role: role}, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "camfleet", "Token issuer")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", hub.RoleViewer, "Role (admin, viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
