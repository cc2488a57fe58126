package credentials

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Well-known slot keys in the persistent store.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
	ProfileKey      = "user"
)

// RoleType is the marketplace role carried on the cached profile.
type RoleType string

const (
	RoleBuyer     RoleType = "buyer"
	RoleSeller    RoleType = "seller"
	RoleDriver    RoleType = "driver"
	RoleWarehouse RoleType = "warehouse"
	RoleAdmin     RoleType = "admin"
)

// UserProfile is the denormalised user record cached alongside the tokens.
type UserProfile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     RoleType `json:"role,omitempty"`
	SiteID   string   `json:"siteId,omitempty"`   // Site/branch the user is affiliated with
	SiteName string   `json:"siteName,omitempty"` // Display name of the site
}

// Credentials is a point-in-time snapshot of the three persisted slots.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Profile      *UserProfile
}

// Complete reports whether every slot is populated, i.e. the session is authenticated.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != "" && c.Profile != nil
}

// Empty reports whether no slot is populated.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.Profile == nil
}

// Token returns the snapshot as an oauth2 bearer token. Expiry is taken from the
// access token's exp claim when it is a JWT and is zero otherwise.
func (c Credentials) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
	}
	if exp, ok := AccessTokenExpiry(c.AccessToken); ok {
		tok.Expiry = exp
	}
	return tok
}

// Clone returns a deep copy so callers can't mutate the store's profile.
func (c Credentials) Clone() Credentials {
	if c.Profile != nil {
		p := *c.Profile
		c.Profile = &p
	}
	return c
}

// Store persists the session credentials. Implementations must be safe for
// concurrent use and Clear must never expose a partially cleared snapshot to Get.
type Store interface {
	// Get returns a consistent snapshot of all slots.
	Get(ctx context.Context) (Credentials, error)

	// Set replaces all three slots.
	Set(ctx context.Context, accessToken, refreshToken string, profile *UserProfile) error

	// SetTokens replaces both tokens and leaves the profile untouched.
	SetTokens(ctx context.Context, accessToken, refreshToken string) error

	// SetProfile replaces the cached profile.
	SetProfile(ctx context.Context, profile *UserProfile) error

	// Clear removes every slot.
	Clear(ctx context.Context) error
}

// ExpiresWithin reports whether the access token is a JWT whose exp falls before now+skew.
func ExpiresWithin(accessToken string, now time.Time, skew time.Duration) bool {
	exp, ok := AccessTokenExpiry(accessToken)
	if !ok {
		return false
	}
	return !exp.After(now.Add(skew))
}
