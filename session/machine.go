// Package session drives the multi-step login against the auth gateway and
// reports the resulting session status.
//
// The machine only remembers the email of a login awaiting a one-time code.
// Tokens and profile live in the credential store, so the status is derived:
// Authenticated whenever the store holds a complete snapshot.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/gateway"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Machine is the session state machine. Login, VerifyCode, ResendCode, Logout
// and profile updates are serialised.
type Machine struct {
	gateway gateway.Gateway
	store   credentials.Store

	opLock sync.Mutex // serialises session-mutating operations

	stateLock    sync.RWMutex
	pendingEmail string
}

// New returns a Machine in the Anonymous state. Call Hydrate to pick up a
// persisted session.
func New(gw gateway.Gateway, store credentials.Store) (*Machine, error) {
	if gw == nil {
		return nil, errors.New("[session.New] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}
	return &Machine{gateway: gw, store: store}, nil
}

// Hydrate reads the store at process start. A partial snapshot can't be an
// authenticated session and is cleared.
func (m *Machine) Hydrate(ctx context.Context) (State, error) {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	creds, err := m.store.Get(ctx)
	if err != nil {
		return State{}, errors.Wrap(err, "[Machine.Hydrate] reading credentials")
	}
	if !creds.Empty() && !creds.Complete() {
		log.Warn().Msg("Discarding partial stored session")
		if err := m.store.Clear(ctx); err != nil {
			return State{}, errors.Wrap(err, "[Machine.Hydrate] clearing partial session")
		}
		creds = credentials.Credentials{}
	}
	return deriveState(m.pending(), creds), nil
}

// State returns the current session state.
func (m *Machine) State(ctx context.Context) (State, error) {
	creds, err := m.store.Get(ctx)
	if err != nil {
		return State{}, errors.Wrap(err, "[Machine.State] reading credentials")
	}
	return deriveState(m.pending(), creds), nil
}

// Status returns the current session status.
func (m *Machine) Status(ctx context.Context) (Status, error) {
	state, err := m.State(ctx)
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

// Login exchanges email and password for a session. When the server asks for
// a one-time code the machine moves to AwaitingCode and nothing is persisted.
// Any failure leaves no pending login behind.
func (m *Machine) Login(ctx context.Context, email, password string) (State, error) {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.setPending("")
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return State{Status: StatusAnonymous}, errors.Wrap(autherrors.ErrInvalidCredentials, "[Machine.Login] email and password are required")
	}

	result, err := m.gateway.Login(ctx, email, password)
	if err != nil {
		return m.currentState(ctx), errors.Wrap(err, "[Machine.Login] login failed")
	}

	switch {
	case result.Authenticated():
		return m.persist(ctx, "[Machine.Login]", result)

	case result != nil && result.VerificationRequired:
		pendingEmail := result.Email
		if pendingEmail == "" {
			pendingEmail = email
		}
		// A code-pending login never coexists with stored tokens.
		if err := m.store.Clear(ctx); err != nil {
			return m.currentState(ctx), errors.Wrap(err, "[Machine.Login] clearing previous session")
		}
		m.setPending(pendingEmail)
		log.Info().Msg("Login requires a one-time code")
		return State{Status: StatusAwaitingCode, PendingEmail: pendingEmail}, nil

	default:
		return m.currentState(ctx), errors.Wrap(autherrors.ErrBadResponse, "[Machine.Login] login result carried neither a session nor a verification request")
	}
}

// VerifyCode completes a login awaiting a one-time code. A rejected code keeps
// the machine in AwaitingCode so the caller can retry or resend.
func (m *Machine) VerifyCode(ctx context.Context, code string) (State, error) {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	email := m.pending()
	if email == "" {
		return m.currentState(ctx), errors.Wrap(autherrors.ErrInvalidState, "[Machine.VerifyCode] no login is awaiting a code")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return State{Status: StatusAwaitingCode, PendingEmail: email}, errors.Wrap(autherrors.ErrInvalidCode, "[Machine.VerifyCode] code is required")
	}

	result, err := m.gateway.VerifyCode(ctx, email, code)
	if err != nil {
		return State{Status: StatusAwaitingCode, PendingEmail: email}, errors.Wrap(err, "[Machine.VerifyCode] verification failed")
	}
	if !result.Authenticated() {
		return State{Status: StatusAwaitingCode, PendingEmail: email}, errors.Wrap(autherrors.ErrBadResponse, "[Machine.VerifyCode] verification result carried no session")
	}
	return m.persist(ctx, "[Machine.VerifyCode]", result)
}

// ResendCode asks the server to send a new code to the pending email.
func (m *Machine) ResendCode(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	email := m.pending()
	if email == "" {
		return errors.Wrap(autherrors.ErrInvalidState, "[Machine.ResendCode] no login is awaiting a code")
	}
	if err := m.gateway.ResendCode(ctx, email); err != nil {
		return errors.Wrap(err, "[Machine.ResendCode] resend failed")
	}
	log.Info().Msg("One-time code resent")
	return nil
}

// CancelVerification abandons a login awaiting a code.
func (m *Machine) CancelVerification() {
	m.setPending("")
}

// Logout tears the session down locally whatever the server says. Only a
// failure to clear the store is returned.
func (m *Machine) Logout(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.setPending("")

	creds, err := m.store.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Reading credentials before logout")
	}
	if creds.AccessToken != "" {
		if err := m.gateway.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Remote logout failed, clearing local session anyway")
		}
	}

	if err := m.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "[Machine.Logout] clearing credentials")
	}
	log.Info().Msg("Logged out")
	return nil
}

// UpdateProfile replaces the cached profile of an authenticated session.
func (m *Machine) UpdateProfile(ctx context.Context, profile *credentials.UserProfile) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()
	return m.updateProfile(ctx, profile)
}

// ReloadProfile fetches the current user from the server and caches it.
func (m *Machine) ReloadProfile(ctx context.Context) (*credentials.UserProfile, error) {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	creds, err := m.store.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Machine.ReloadProfile] reading credentials")
	}
	if !creds.Complete() {
		return nil, errors.Wrap(autherrors.ErrUnauthenticated, "[Machine.ReloadProfile]")
	}

	profile, err := m.gateway.Profile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Machine.ReloadProfile] fetching profile")
	}
	if err := m.updateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SessionEnded resets the machine after the authorizer tore the session down.
// It must not wait on opLock: it runs inside requests made by operations
// holding it.
func (m *Machine) SessionEnded(_ context.Context, cause error) {
	m.setPending("")
	log.Debug().Err(cause).Msg("Session machine reset")
}

func (m *Machine) updateProfile(ctx context.Context, profile *credentials.UserProfile) error {
	if profile == nil {
		return errors.Wrap(autherrors.ErrBadResponse, "[Machine.UpdateProfile] profile is required")
	}
	creds, err := m.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "[Machine.UpdateProfile] reading credentials")
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return errors.Wrap(autherrors.ErrUnauthenticated, "[Machine.UpdateProfile]")
	}
	if err := m.store.SetProfile(ctx, profile); err != nil {
		return errors.Wrap(err, "[Machine.UpdateProfile] saving profile")
	}
	return nil
}

func (m *Machine) persist(ctx context.Context, op string, result *gateway.LoginResult) (State, error) {
	if err := m.store.Set(ctx, result.Token.AccessToken, result.Token.RefreshToken, result.Profile); err != nil {
		return m.currentState(ctx), errors.Wrap(err, op+" saving credentials")
	}
	m.setPending("")
	profile := utils.Value(result.Profile)
	log.Info().Str("user_id", profile.ID).Str("role", string(profile.Role)).Msg("Logged in")
	return m.currentState(ctx), nil
}

// currentState is State for error paths, where a store failure is already being reported.
func (m *Machine) currentState(ctx context.Context) State {
	state, err := m.State(ctx)
	if err != nil {
		return deriveState(m.pending(), credentials.Credentials{})
	}
	return state
}

func (m *Machine) pending() string {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.pendingEmail
}

func (m *Machine) setPending(email string) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	m.pendingEmail = email
}
