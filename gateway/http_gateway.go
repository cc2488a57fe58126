package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Operation names used in errors and logs.
const (
	OpLogin      = "login"
	OpVerifyCode = "verify-code"
	OpResendCode = "resend-code"
	OpRefresh    = "refresh"
	OpLogout     = "logout"
	OpProfile    = "profile"
)

const maxErrorBody = 4 << 10

var _ Gateway = (*HTTPGateway)(nil)

// tokenResponse is the JSON body of login, verify-code and refresh.
type tokenResponse struct {
	AccessToken  string                   `json:"accessToken"`
	RefreshToken string                   `json:"refreshToken"`
	TokenType    string                   `json:"tokenType,omitempty"`
	ExpiresIn    int                      `json:"expiresIn,omitempty"` // seconds
	User         *credentials.UserProfile `json:"user,omitempty"`

	VerificationRequired bool   `json:"verificationRequired,omitempty"`
	Email                string `json:"email,omitempty"`
}

// errorResponse is what the API returns alongside non-2xx statuses.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// HTTPGateway talks JSON to the remote API.
type HTTPGateway struct {
	baseURL *url.URL
	client  *http.Client
	nowTime func() time.Time
}

// Option configures an HTTPGateway.
type Option func(*HTTPGateway)

// WithHTTPClient sets the client used for every call. Pass a client whose
// transport is the request authorizer so authenticated calls carry a bearer token.
func WithHTTPClient(client *http.Client) Option {
	return func(g *HTTPGateway) {
		g.client = client
	}
}

// WithNowTime sets the clock used to compute token expiry (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *HTTPGateway) {
		g.nowTime = nowFunc
	}
}

// New returns a gateway for the API rooted at baseURL.
func New(baseURL string, options ...Option) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[gateway.New] invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[gateway.New] base URL %q must be absolute", baseURL)
	}

	g := &HTTPGateway{
		baseURL: u,
		client:  http.DefaultClient,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// URL resolves an API path against the base URL.
func (g *HTTPGateway) URL(path string) string {
	return g.baseURL.String() + path
}

func (g *HTTPGateway) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp tokenResponse
	if err := g.do(ctx, OpLogin, http.MethodPost, LoginPath, map[string]string{
		"email":    email,
		"password": password,
	}, &resp); err != nil {
		return nil, err
	}

	if resp.VerificationRequired {
		echoed := resp.Email
		if echoed == "" {
			echoed = email
		}
		return &LoginResult{VerificationRequired: true, Email: echoed}, nil
	}
	return g.sessionResult(OpLogin, resp)
}

func (g *HTTPGateway) VerifyCode(ctx context.Context, email, code string) (*LoginResult, error) {
	var resp tokenResponse
	if err := g.do(ctx, OpVerifyCode, http.MethodPost, VerifyCodePath, map[string]string{
		"email": email,
		"code":  code,
	}, &resp); err != nil {
		return nil, err
	}
	return g.sessionResult(OpVerifyCode, resp)
}

func (g *HTTPGateway) ResendCode(ctx context.Context, email string) error {
	return g.do(ctx, OpResendCode, http.MethodPost, ResendCodePath, map[string]string{
		"email": email,
	}, nil)
}

// Refresh exchanges refreshToken for a new pair. Servers that don't rotate
// refresh tokens may omit refreshToken; the presented one is kept in that case.
func (g *HTTPGateway) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var resp tokenResponse
	if err := g.do(ctx, OpRefresh, http.MethodPost, RefreshPath, map[string]string{
		"refreshToken": refreshToken,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &autherrors.GatewayError{Op: OpRefresh, StatusCode: http.StatusOK, Message: "missing accessToken", Err: autherrors.ErrInvalidRefreshToken}
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	return g.token(resp), nil
}

func (g *HTTPGateway) Logout(ctx context.Context) error {
	return g.do(ctx, OpLogout, http.MethodPost, LogoutPath, nil, nil)
}

// Profile accepts either {"user": {...}} or a bare profile object.
func (g *HTTPGateway) Profile(ctx context.Context) (*credentials.UserProfile, error) {
	var raw json.RawMessage
	if err := g.do(ctx, OpProfile, http.MethodGet, ProfilePath, nil, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		User *credentials.UserProfile `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	var profile credentials.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil || profile.ID == "" {
		return nil, &autherrors.GatewayError{Op: OpProfile, StatusCode: http.StatusOK, Message: "missing user", Err: autherrors.ErrBadResponse}
	}
	return &profile, nil
}

func (g *HTTPGateway) sessionResult(op string, resp tokenResponse) (*LoginResult, error) {
	result := &LoginResult{Token: g.token(resp), Profile: resp.User}
	if !result.Authenticated() {
		return nil, &autherrors.GatewayError{Op: op, StatusCode: http.StatusOK, Message: "incomplete session in response", Err: autherrors.ErrBadResponse}
	}
	return result, nil
}

func (g *HTTPGateway) token(resp tokenResponse) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	switch {
	case resp.ExpiresIn > 0:
		tok.Expiry = g.nowTime().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		if exp, ok := credentials.AccessTokenExpiry(resp.AccessToken); ok {
			tok.Expiry = exp
		}
	}
	return tok
}

// do performs one JSON round-trip. out may be nil when the body is ignored.
func (g *HTTPGateway) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[HTTPGateway.%s] encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.URL(path), body)
	if err != nil {
		return fmt.Errorf("[HTTPGateway.%s] building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Debug().Err(err).Str("op", op).Msg("Auth gateway transport failure")
		return &autherrors.GatewayError{Op: op, Message: err.Error(), Err: autherrors.ErrNetworkFailure}
	}
	defer resp.Body.Close()

	log.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("Auth gateway call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &autherrors.GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
			Err:        classify(op, resp.StatusCode),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &autherrors.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "empty body", Err: autherrors.ErrBadResponse}
		}
		return &autherrors.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Err: autherrors.ErrBadResponse}
	}
	return nil
}

// classify maps a failed status to the error taxonomy for op.
func classify(op string, status int) error {
	if status == http.StatusTooManyRequests {
		return autherrors.ErrRateLimited
	}
	switch op {
	case OpLogin:
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
			return autherrors.ErrInvalidCredentials
		}
	case OpVerifyCode:
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity {
			return autherrors.ErrInvalidCode
		}
	case OpRefresh:
		// Any other rejection of the refresh token ends the session.
		if status >= 400 && status < 500 {
			return autherrors.ErrInvalidRefreshToken
		}
	case OpLogout, OpProfile:
		if status == http.StatusUnauthorized {
			return autherrors.ErrUnauthenticated
		}
	}
	if status >= 500 {
		return autherrors.ErrNetworkFailure
	}
	return autherrors.ErrBadResponse
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var e errorResponse
	if json.Unmarshal(data, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return ""
}
