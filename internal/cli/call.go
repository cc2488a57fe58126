package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-session/client"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/spf13/cobra"
)

func newCallCommand(newClient ClientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <path>",
		Short: "Send an authorized request to the API",
		Long: `Send a request to an API path with the stored bearer token.

An expired token is refreshed and the request replayed once. If the session
can't be renewed, the stored credentials are removed and, unless --page is a
public page, a redirect to the login page is reported.

Examples:
  authclient call /orders
  authclient call --method POST --data '{"sku":"A1"}' /cart/items
  authclient call --page /register /catalog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, _ := cmd.Flags().GetString("method")
			page, _ := cmd.Flags().GetString("page")
			data, _ := cmd.Flags().GetString("data")

			nav := redirect.NewStaticNavigator(page, func(target string) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Session ended, redirect to %s\n", target)
			})

			return withClient(cmd, newClient, func(c *client.Client) error {
				var body io.Reader
				if data != "" {
					body = strings.NewReader(data)
				}
				req, err := c.NewRequest(cmd.Context(), strings.ToUpper(method), args[0], body)
				if err != nil {
					return err
				}
				if data != "" {
					req.Header.Set("Content-Type", "application/json")
				}

				resp, err := c.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()

				fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", resp.Status)
				if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
					return err
				}
				if resp.StatusCode >= http.StatusBadRequest {
					return fmt.Errorf("request failed with status %d", resp.StatusCode)
				}
				return nil
			}, client.WithNavigator(nav))
		},
	}
	cmd.Flags().String("method", http.MethodGet, "HTTP method")
	cmd.Flags().String("page", "/", "Page the call is made from, used for the login redirect decision")
	cmd.Flags().String("data", "", "JSON request body")
	return cmd
}
