package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-auth-session/client"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/spf13/cobra"
)

const resendKeyword = "resend"

func newLoginCommand(newClient ClientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Long: `Log in with email and password.

When the account requires a one-time code the command waits for it on stdin.
Type "resend" to have a new code sent.

Examples:
  authclient login --email a@x.com --password secret
  echo 123456 | authclient login --email a@x.com --password secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" {
				return fmt.Errorf("--email is required")
			}

			return withClient(cmd, newClient, func(c *client.Client) error {
				return runLogin(cmd, c, email, password)
			})
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password (prompted when omitted)")
	return cmd
}

func runLogin(cmd *cobra.Command, c *client.Client, email, password string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	if password == "" {
		var err error
		if password, err = prompt(cmd, in, "Password: "); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	state, err := c.Session.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	for state.Status == session.StatusAwaitingCode {
		code, err := prompt(cmd, in, fmt.Sprintf("Enter the code sent to %s (or %q): ", state.PendingEmail, resendKeyword))
		if err != nil {
			c.Session.CancelVerification()
			if autherrors.Is(err, io.EOF) {
				return autherrors.Wrapf(autherrors.ErrVerificationRequired, "verification cancelled")
			}
			return fmt.Errorf("reading code: %w", err)
		}

		if strings.EqualFold(code, resendKeyword) {
			if err := c.Session.ResendCode(ctx); err != nil {
				if autherrors.Is(err, autherrors.ErrRateLimited) {
					fmt.Fprintln(out, "Too many requests, wait before asking for another code")
					continue
				}
				return fmt.Errorf("resend failed: %w", err)
			}
			fmt.Fprintln(out, "A new code is on its way")
			continue
		}

		next, err := c.Session.VerifyCode(ctx, code)
		if err != nil {
			if autherrors.Is(err, autherrors.ErrInvalidCode) {
				fmt.Fprintln(out, "Invalid code, try again")
				continue
			}
			c.Session.CancelVerification()
			return fmt.Errorf("verification failed: %w", err)
		}
		state = next
	}

	fmt.Fprintf(out, "Logged in as %s\n", describe(state))
	return nil
}

func describe(state session.State) string {
	p := utils.Value(state.Profile)
	name := p.Name
	if name == "" {
		name = p.Email
	}
	if name == "" {
		name = "unknown user"
	}
	if p.Role != "" {
		return fmt.Sprintf("%s (%s)", name, p.Role)
	}
	return name
}
