package credentialsrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/credentials"
)

var _ credentials.Store = (*FakeCredentialStore)(nil)

// FakeCredentialStore keeps the slots in memory. It is used by tests and by the
// "memory" store backend for processes that don't need to survive a restart.
type FakeCredentialStore struct {
	creds    credentials.Credentials
	lock     sync.RWMutex
	writes   int
	clears   int
	clearErr error
}

func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{}
}

// NewFakeCredentialStoreWith returns a store pre-populated with creds.
func NewFakeCredentialStoreWith(creds credentials.Credentials) *FakeCredentialStore {
	return &FakeCredentialStore{creds: creds.Clone()}
}

func (s *FakeCredentialStore) Get(_ context.Context) (credentials.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.creds.Clone(), nil
}

func (s *FakeCredentialStore) Set(_ context.Context, accessToken, refreshToken string, profile *credentials.UserProfile) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.creds = credentials.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Profile:      profile,
	}.Clone()
	s.writes++
	return nil
}

func (s *FakeCredentialStore) SetTokens(_ context.Context, accessToken, refreshToken string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.creds.AccessToken = accessToken
	s.creds.RefreshToken = refreshToken
	s.writes++
	return nil
}

func (s *FakeCredentialStore) SetProfile(_ context.Context, profile *credentials.UserProfile) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.creds.Profile = credentials.Credentials{Profile: profile}.Clone().Profile
	s.writes++
	return nil
}

func (s *FakeCredentialStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.creds = credentials.Credentials{}
	s.clears++
	return nil
}

// FailClear makes subsequent Clear calls return err.
func (s *FakeCredentialStore) FailClear(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.clearErr = err
}

// Writes returns how many Set/SetTokens/SetProfile calls succeeded.
func (s *FakeCredentialStore) Writes() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.writes
}

// Clears returns how many Clear calls succeeded.
func (s *FakeCredentialStore) Clears() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.clears
}
