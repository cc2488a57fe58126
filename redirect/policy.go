// Package redirect decides where to send the user after an unrecoverable
// authorization failure. Pages reachable while logged out are left alone so an
// anonymous visitor is never bounced away from, or back to, a public page.
package redirect

import (
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultLoginPath is the login entry point.
const DefaultLoginPath = "/login"

// DefaultPublicPages are reachable without a session. Entries are exact paths
// or path.Match patterns.
var DefaultPublicPages = []string{
	"/",
	"/login",
	"/register",
	"/register/*",
	"/forgot-password",
	"/forgot-password/*",
	"/reset-password",
	"/reset-password/*",
	"/verify-code",
}

// Navigator is the host application's view of the current page.
type Navigator interface {
	// Location returns the current page, as a path or URL.
	Location() string
	// Navigate forces navigation to target.
	Navigate(target string)
}

// Policy holds the single public-page allow-list.
type Policy struct {
	loginPath   string
	publicPages []string
}

// Option configures a Policy.
type Option func(*Policy)

// WithLoginPath overrides the login entry point.
func WithLoginPath(p string) Option {
	return func(pol *Policy) {
		if p != "" {
			pol.loginPath = normalize(p)
		}
	}
}

// WithPublicPages replaces the allow-list. A nil or empty list keeps the defaults.
func WithPublicPages(pages []string) Option {
	return func(pol *Policy) {
		if len(pages) > 0 {
			pol.publicPages = normalizeAll(pages)
		}
	}
}

// New returns a policy. The login path is always treated as public.
func New(options ...Option) *Policy {
	pol := &Policy{
		loginPath:   DefaultLoginPath,
		publicPages: normalizeAll(DefaultPublicPages),
	}
	for _, opt := range options {
		opt(pol)
	}
	return pol
}

// LoginPath returns the login entry point.
func (p *Policy) LoginPath() string {
	return p.loginPath
}

// PublicPages returns a copy of the allow-list.
func (p *Policy) PublicPages() []string {
	return append([]string(nil), p.publicPages...)
}

// IsPublic reports whether location is reachable while logged out. Query
// strings, fragments, scheme and host are ignored.
func (p *Policy) IsPublic(location string) bool {
	current := normalize(location)
	if current == p.loginPath {
		return true
	}
	for _, pattern := range p.publicPages {
		if pattern == current {
			return true
		}
		if ok, err := path.Match(pattern, current); err == nil && ok {
			return true
		}
	}
	return false
}

// Decide returns the navigation target for location, if any.
func (p *Policy) Decide(location string) (target string, redirect bool) {
	if p.IsPublic(location) {
		return "", false
	}
	return p.loginPath, true
}

// Enforce applies the policy to nav. It reports whether navigation was forced.
func (p *Policy) Enforce(nav Navigator) bool {
	if nav == nil {
		return false
	}
	location := nav.Location()
	target, redirect := p.Decide(location)
	if !redirect {
		log.Debug().Str("path", normalize(location)).Msg("Session ended on a public page, staying put")
		return false
	}
	log.Info().Str("path", normalize(location)).Str("target", target).Msg("Session ended, redirecting to login")
	nav.Navigate(target)
	return true
}

// normalize reduces a location to a clean absolute path without a trailing slash.
func normalize(location string) string {
	location = strings.TrimSpace(location)
	if u, err := url.Parse(location); err == nil {
		location = u.Path
	} else if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	if location == "" {
		return "/"
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return path.Clean(location)
}

func normalizeAll(pages []string) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, normalize(p))
	}
	return out
}
