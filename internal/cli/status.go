package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-session/client"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/spf13/cobra"
)

func newStatusCommand(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, newClient, func(c *client.Client) error {
				state, err := c.Session.State(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Status: %s\n", state.Status)
				if state.Status != session.StatusAuthenticated {
					return nil
				}
				fmt.Fprintf(out, "User:   %s\n", describe(state))
				if site := utils.Value(state.Profile).SiteName; site != "" {
					fmt.Fprintf(out, "Site:   %s\n", site)
				}
				if !state.Expiry.IsZero() {
					fmt.Fprintf(out, "Token expires: %s\n", state.Expiry.Local().Format(time.RFC1123))
				}
				return nil
			})
		},
	}
}

func newWhoamiCommand(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the current user from the API and refresh the cached profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, newClient, func(c *client.Client) error {
				profile, err := c.Session.ReloadProfile(cmd.Context())
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(profile, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
}
