// Package cli holds the authclient cobra commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-session/client"
	"github.com/spf13/cobra"
)

// ClientFactory builds the client a command runs against.
type ClientFactory func(ctx context.Context, opts ...client.Option) (*client.Client, error)

// NewRootCommand returns the authclient command tree.
func NewRootCommand(newClient ClientFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "authclient",
		Short: "Log in to the marketplace API and make authorized calls",
		Long: `authclient keeps a session with the marketplace API.

Credentials are kept in the configured credential store (a file by default)
and are renewed automatically when the API rejects an expired access token.

Examples:
  authclient login --email a@x.com
  authclient status
  authclient call /orders
  authclient logout`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCommand(newClient),
		newLogoutCommand(newClient),
		newStatusCommand(newClient),
		newWhoamiCommand(newClient),
		newCallCommand(newClient),
	)
	return root
}

// withClient opens a client for the duration of fn.
func withClient(cmd *cobra.Command, newClient ClientFactory, fn func(c *client.Client) error, opts ...client.Option) error {
	c, err := newClient(cmd.Context(), opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// prompt writes label and reads one line from the command's input.
func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
