// Package gateway is the client side of the remote auth API: login, one-time-code
// verification, code resend, token refresh, logout and the current-user profile.
package gateway

import (
	"context"

	"github.com/jrsteele09/go-auth-session/credentials"
	"golang.org/x/oauth2"
)

// Paths of the auth endpoints, relative to the API base URL.
const (
	LoginPath      = "/auth/login"
	VerifyCodePath = "/auth/verify-code"
	ResendCodePath = "/auth/resend-code"
	RefreshPath    = "/auth/refresh"
	LogoutPath     = "/auth/logout"
	ProfilePath    = "/auth/me"
)

// UnauthenticatedPaths lists the endpoints that must never carry a bearer token
// and whose failures must never trigger a refresh.
func UnauthenticatedPaths() []string {
	return []string{LoginPath, VerifyCodePath, ResendCodePath, RefreshPath}
}

// LoginResult is the outcome of a login or verify-code call. Exactly one of the
// two shapes is populated: Token and Profile, or VerificationRequired and Email.
type LoginResult struct {
	Token   *oauth2.Token
	Profile *credentials.UserProfile

	VerificationRequired bool
	Email                string // Echoed by the server when VerificationRequired
}

// Authenticated reports whether the result carries a full session.
func (r *LoginResult) Authenticated() bool {
	return r != nil &&
		r.Token != nil &&
		r.Token.AccessToken != "" &&
		r.Token.RefreshToken != "" &&
		r.Profile != nil
}

// Gateway is the auth API contract the session machine and authorizer depend on.
type Gateway interface {
	// Login exchanges an email and password for a session, or reports that a
	// one-time code is required. Fails with ErrInvalidCredentials.
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	// VerifyCode completes a login awaiting a one-time code. Fails with ErrInvalidCode.
	VerifyCode(ctx context.Context, email, code string) (*LoginResult, error)

	// ResendCode asks the server to send a new one-time code. Fails with ErrRateLimited.
	ResendCode(ctx context.Context, email string) error

	// Refresh mints a new token pair. Fails with ErrInvalidRefreshToken.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Logout invalidates the session server side. Best-effort.
	Logout(ctx context.Context) error

	// Profile fetches the current user's profile.
	Profile(ctx context.Context) (*credentials.UserProfile, error)
}
