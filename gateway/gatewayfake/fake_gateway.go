package gatewayfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/gateway"
	"golang.org/x/oauth2"
)

var _ gateway.Gateway = (*FakeGateway)(nil)

// FakeGateway is a programmable gateway. Unset funcs succeed with zero values.
// Every call is counted per operation.
type FakeGateway struct {
	LoginFunc      func(ctx context.Context, email, password string) (*gateway.LoginResult, error)
	VerifyCodeFunc func(ctx context.Context, email, code string) (*gateway.LoginResult, error)
	ResendCodeFunc func(ctx context.Context, email string) error
	RefreshFunc    func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	LogoutFunc     func(ctx context.Context) error
	ProfileFunc    func(ctx context.Context) (*credentials.UserProfile, error)

	lock  sync.Mutex
	calls map[string]int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{calls: make(map[string]int)}
}

// Calls returns how many times op (gateway.OpLogin, ...) was invoked.
func (f *FakeGateway) Calls(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[op]
}

func (f *FakeGateway) record(op string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *FakeGateway) Login(ctx context.Context, email, password string) (*gateway.LoginResult, error) {
	f.record(gateway.OpLogin)
	if f.LoginFunc == nil {
		return &gateway.LoginResult{}, nil
	}
	return f.LoginFunc(ctx, email, password)
}

func (f *FakeGateway) VerifyCode(ctx context.Context, email, code string) (*gateway.LoginResult, error) {
	f.record(gateway.OpVerifyCode)
	if f.VerifyCodeFunc == nil {
		return &gateway.LoginResult{}, nil
	}
	return f.VerifyCodeFunc(ctx, email, code)
}

func (f *FakeGateway) ResendCode(ctx context.Context, email string) error {
	f.record(gateway.OpResendCode)
	if f.ResendCodeFunc == nil {
		return nil
	}
	return f.ResendCodeFunc(ctx, email)
}

func (f *FakeGateway) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.record(gateway.OpRefresh)
	if f.RefreshFunc == nil {
		return &oauth2.Token{}, nil
	}
	return f.RefreshFunc(ctx, refreshToken)
}

func (f *FakeGateway) Logout(ctx context.Context) error {
	f.record(gateway.OpLogout)
	if f.LogoutFunc == nil {
		return nil
	}
	return f.LogoutFunc(ctx)
}

func (f *FakeGateway) Profile(ctx context.Context) (*credentials.UserProfile, error) {
	f.record(gateway.OpProfile)
	if f.ProfileFunc == nil {
		return nil, nil
	}
	return f.ProfileFunc(ctx)
}

// Session returns an authenticated login result, handy for LoginFunc/VerifyCodeFunc.
func Session(accessToken, refreshToken string, profile *credentials.UserProfile) *gateway.LoginResult {
	return &gateway.LoginResult{
		Token: &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
		},
		Profile: profile,
	}
}

// VerificationRequired returns a login result asking for a one-time code.
func VerificationRequired(email string) *gateway.LoginResult {
	return &gateway.LoginResult{VerificationRequired: true, Email: email}
}
