package authorizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/gateway"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshTimeout = 15 * time.Second
	refreshKey            = "refresh"
)

// Refresher mints a new token pair from a refresh token. It must not route
// through the Transport it is given to.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// SessionEndedFunc is called once per terminal refresh failure, after the
// credential store has been cleared.
type SessionEndedFunc func(ctx context.Context, cause error)

// Transport is the request authorizer.
type Transport struct {
	base      http.RoundTripper
	store     credentials.Store
	refresher Refresher

	policy    *redirect.Policy
	navigator redirect.Navigator

	unauthenticated map[string]struct{}
	refreshTimeout  time.Duration
	refreshSkew     time.Duration
	nowTime         func() time.Time

	flight singleflight.Group

	hooksLock sync.RWMutex
	onEnded   []SessionEndedFunc
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying transport (http.DefaultTransport by default).
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithRedirectPolicy applies policy to nav after a terminal authorization failure.
func WithRedirectPolicy(policy *redirect.Policy, nav redirect.Navigator) Option {
	return func(t *Transport) {
		t.policy = policy
		t.navigator = nav
	}
}

// WithUnauthenticatedPaths replaces the URL paths that never carry a bearer
// token. Defaults to gateway.UnauthenticatedPaths().
func WithUnauthenticatedPaths(paths ...string) Option {
	return func(t *Transport) {
		t.unauthenticated = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			t.unauthenticated[path.Clean("/"+p)] = struct{}{}
		}
	}
}

// WithRefreshTimeout bounds a single refresh round-trip.
func WithRefreshTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.refreshTimeout = d
		}
	}
}

// WithProactiveRefresh refreshes a JWT access token whose exp is within skew
// before sending, instead of waiting for the server's 401. Zero disables it.
func WithProactiveRefresh(skew time.Duration) Option {
	return func(t *Transport) {
		t.refreshSkew = skew
	}
}

// WithNowTime sets the clock used for proactive refresh (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(t *Transport) {
		t.nowTime = nowFunc
	}
}

// New returns a Transport reading credentials from store and renewing them with refresher.
func New(store credentials.Store, refresher Refresher, options ...Option) (*Transport, error) {
	if store == nil {
		return nil, errors.New("[authorizer.New] store is required")
	}
	if refresher == nil {
		return nil, errors.New("[authorizer.New] refresher is required")
	}

	t := &Transport{
		base:           http.DefaultTransport,
		store:          store,
		refresher:      refresher,
		refreshTimeout: defaultRefreshTimeout,
		nowTime:        time.Now,
	}
	WithUnauthenticatedPaths(gateway.UnauthenticatedPaths()...)(t)
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// Client returns an http.Client using t, with the transport-level timeout applied.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// OnSessionEnded registers fn to run when the session is torn down after a
// terminal refresh failure.
func (t *Transport) OnSessionEnded(fn SessionEndedFunc) {
	t.hooksLock.Lock()
	defer t.hooksLock.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

// Token implements oauth2.TokenSource over the credential store, so the stored
// session can be handed to code expecting an oauth2 token source.
func (t *Transport) Token() (*oauth2.Token, error) {
	creds, err := t.store.Get(context.Background())
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, autherrors.ErrUnauthenticated
	}
	return creds.Token(), nil
}

// IsUnauthenticated reports whether req targets an endpoint that never carries a bearer token.
func (t *Transport) IsUnauthenticated(req *http.Request) bool {
	_, ok := t.unauthenticated[path.Clean("/"+req.URL.Path)]
	return ok
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.IsUnauthenticated(req) {
		out := req.Clone(req.Context())
		ensureRequestID(out)
		return t.base.RoundTrip(out)
	}

	ctx := req.Context()
	creds, err := t.store.Get(ctx)
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("[authorizer.RoundTrip] reading credentials: %w", err)
	}
	accessToken := creds.AccessToken

	if t.refreshSkew > 0 && !IsRetried(ctx) && creds.RefreshToken != "" &&
		credentials.ExpiresWithin(accessToken, t.nowTime(), t.refreshSkew) {
		fresh, err := t.refresh(ctx, accessToken)
		switch {
		case err == nil:
			accessToken = fresh
		case ctx.Err() != nil:
			closeBody(req)
			return nil, ctx.Err()
		case autherrors.IsTerminalRefresh(err):
			// The session is gone; let the server's answer be the caller's failure.
			req = markRetried(req)
			accessToken = ""
		default:
			log.Debug().Err(err).Msg("Proactive refresh failed, sending current token")
		}
	}

	out, err := prepare(req)
	if err != nil {
		return nil, err
	}
	requestID := ensureRequestID(out)
	setBearer(out, accessToken)

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || IsRetried(ctx) || IsRetried(out.Context()) {
		return resp, err
	}

	logger := log.With().Str("request_id", requestID).Str("path", out.URL.Path).Logger()
	logger.Debug().Msg("Authorization failed, refreshing session")

	fresh, err := t.refresh(ctx, accessToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			drainAndClose(resp)
			return nil, ctxErr
		}
		logger.Debug().Err(err).Msg("Refresh failed, returning original response")
		return resp, nil
	}
	drainAndClose(resp)

	replay, err := rewind(markRetried(out))
	if err != nil {
		return nil, fmt.Errorf("[authorizer.RoundTrip] replaying request: %w", err)
	}
	setBearer(replay, fresh)
	logger.Debug().Msg("Replaying request with refreshed token")
	return t.base.RoundTrip(replay)
}

// refresh joins the single in-flight refresh, starting one if needed.
// failedToken is the access token the failing request carried.
func (t *Transport) refresh(ctx context.Context, failedToken string) (string, error) {
	ch := t.flight.DoChan(refreshKey, func() (any, error) {
		return t.doRefresh(context.WithoutCancel(ctx), failedToken)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Transport) doRefresh(parent context.Context, failedToken string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, t.refreshTimeout)
	defer cancel()

	creds, err := t.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("[authorizer.refresh] reading credentials: %w", err)
	}

	switch {
	case creds.AccessToken != "" && creds.AccessToken != failedToken:
		// Renewed after the failing request was sent.
		return creds.AccessToken, nil
	case creds.Empty() && failedToken != "":
		// Torn down after the failing request was sent.
		return "", fmt.Errorf("[authorizer.refresh] session already ended: %w", autherrors.ErrRefreshFailed)
	case creds.Empty():
		// Anonymous: nothing to clear and no session to end, only the redirect applies.
		err := fmt.Errorf("[authorizer.refresh] no session: %w", autherrors.ErrRefreshFailed)
		t.redirect()
		return "", err
	case creds.RefreshToken == "":
		err := fmt.Errorf("[authorizer.refresh] no refresh token: %w", autherrors.ErrRefreshFailed)
		t.endSession(ctx, err)
		return "", err
	}

	log.Debug().Msg("Refreshing access token")
	tok, err := t.refresher.Refresh(ctx, creds.RefreshToken)
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = &autherrors.GatewayError{Op: gateway.OpRefresh, Message: "empty token", Err: autherrors.ErrInvalidRefreshToken}
	}
	if err != nil {
		if rejected(err) {
			err = fmt.Errorf("[authorizer.refresh] %w: %w", autherrors.ErrRefreshFailed, err)
			t.endSession(ctx, err)
			return "", err
		}
		log.Warn().Err(err).Msg("Refresh did not complete, keeping session")
		return "", fmt.Errorf("[authorizer.refresh] %w", err)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	if err := t.store.SetTokens(ctx, tok.AccessToken, refreshToken); err != nil {
		return "", fmt.Errorf("[authorizer.refresh] saving tokens: %w", err)
	}
	log.Info().Msg("Access token refreshed")
	return tok.AccessToken, nil
}

// endSession tears the session down: clear credentials, run hooks, redirect.
func (t *Transport) endSession(ctx context.Context, cause error) {
	log.Info().Err(cause).Msg("Session ended")
	if err := t.store.Clear(ctx); err != nil {
		log.Err(err).Msg("Failed to clear credentials")
	}

	t.hooksLock.RLock()
	hooks := append([]SessionEndedFunc(nil), t.onEnded...)
	t.hooksLock.RUnlock()
	for _, hook := range hooks {
		hook(ctx, cause)
	}

	t.redirect()
}

func (t *Transport) redirect() {
	if t.policy != nil {
		t.policy.Enforce(t.navigator)
	}
}

// rejected reports whether a refresh failure means the refresh token is no
// longer accepted. Transport failures, rate limiting and timeouts leave the
// session in place.
func rejected(err error) bool {
	switch {
	case autherrors.IsTerminalRefresh(err):
		return true
	case errors.Is(err, autherrors.ErrNetworkFailure),
		errors.Is(err, autherrors.ErrRateLimited),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// prepare clones req for sending and makes its body replayable.
func prepare(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("[authorizer.RoundTrip] buffering body: %w", err)
	}
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.Body, _ = out.GetBody()
	out.ContentLength = int64(len(data))
	return out, nil
}

// rewind returns a clone of req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func setBearer(req *http.Request, accessToken string) {
	if accessToken == "" {
		req.Header.Del("Authorization")
		return
	}
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
