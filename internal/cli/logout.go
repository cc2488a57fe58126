package cli

import (
	"fmt"

	"github.com/jrsteele09/go-auth-session/client"
	"github.com/spf13/cobra"
)

func newLogoutCommand(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, newClient, func(c *client.Client) error {
				if err := c.Session.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}
