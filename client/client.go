// Package client wires the credential store, auth gateway, request authorizer,
// redirect policy and session machine together from configuration.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-session/authorizer"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/gateway"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/rs/zerolog/log"
)

// Client is a ready-to-use session: a state machine for logging in and out and
// an http.Client whose calls carry and renew the bearer token.
type Client struct {
	Session    *session.Machine
	Store      credentials.Store
	Policy     *redirect.Policy
	Authorizer *authorizer.Transport
	Gateway    gateway.Gateway

	baseURL    string
	httpClient *http.Client
	closeStore func() error
}

type options struct {
	store     credentials.Store
	navigator redirect.Navigator
	base      http.RoundTripper
}

// Option configures New.
type Option func(*options)

// WithStore uses store instead of the backend named by the configuration.
func WithStore(store credentials.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithNavigator receives forced navigations after the session ends on a protected page.
func WithNavigator(nav redirect.Navigator) Option {
	return func(o *options) {
		o.navigator = nav
	}
}

// WithBaseTransport sets the transport under the authorizer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// New builds a Client from cfg and hydrates the session from the store.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	o := options{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{baseURL: cfg.GetAPIBaseURL(), closeStore: func() error { return nil }}

	c.Store = o.store
	if c.Store == nil {
		store, closeStore, err := NewStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.Store, c.closeStore = store, closeStore
	}

	policyOptions := []redirect.Option{redirect.WithLoginPath(cfg.GetLoginPath())}
	if pages := cfg.GetPublicPages(); pages != nil {
		policyOptions = append(policyOptions, redirect.WithPublicPages(pages))
	}
	c.Policy = redirect.New(policyOptions...)

	// Refreshes go straight to the wire; everything else goes through the authorizer.
	refresher, err := gateway.New(c.baseURL, gateway.WithHTTPClient(&http.Client{
		Transport: o.base,
		Timeout:   cfg.GetRequestTimeout(),
	}))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client.New] %w", err)
	}

	unauthenticated, err := unauthenticatedPaths(refresher)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client.New] %w", err)
	}

	c.Authorizer, err = authorizer.New(c.Store, refresher,
		authorizer.WithBase(o.base),
		authorizer.WithRedirectPolicy(c.Policy, o.navigator),
		authorizer.WithUnauthenticatedPaths(unauthenticated...),
		authorizer.WithRefreshTimeout(cfg.GetRefreshTimeout()),
		authorizer.WithProactiveRefresh(cfg.GetProactiveRefreshSkew()),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client.New] %w", err)
	}
	c.httpClient = c.Authorizer.Client(cfg.GetRequestTimeout())

	c.Gateway, err = gateway.New(c.baseURL, gateway.WithHTTPClient(c.httpClient))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client.New] %w", err)
	}

	c.Session, err = session.New(c.Gateway, c.Store)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client.New] %w", err)
	}
	c.Authorizer.OnSessionEnded(c.Session.SessionEnded)

	state, err := c.Session.Hydrate(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client.New] %w", err)
	}
	log.Debug().Str("status", state.Status.String()).Msg("Session hydrated")
	return c, nil
}

// HTTPClient returns the client that authorizes every call.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// NewRequest builds a request for an API path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

// Do sends req through the authorizer.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Close releases the credential store.
func (c *Client) Close() error {
	return c.closeStore()
}

// unauthenticatedPaths resolves the auth endpoints under the base URL's path.
func unauthenticatedPaths(gw *gateway.HTTPGateway) ([]string, error) {
	var paths []string
	for _, p := range gateway.UnauthenticatedPaths() {
		u, err := url.Parse(gw.URL(p))
		if err != nil {
			return nil, err
		}
		paths = append(paths, u.Path)
	}
	return paths, nil
}
