// Package filestore persists session credentials in a single JSON document on
// disk, optionally encrypted with a passphrase-derived key.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-session/credentials"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
)

const backendName = "file"

var _ credentials.Store = (*Store)(nil)

// document is the on-disk layout; one field per well-known slot key.
type document struct {
	AccessToken  string                   `json:"accessToken,omitempty"`
	RefreshToken string                   `json:"refreshToken,omitempty"`
	User         *credentials.UserProfile `json:"user,omitempty"`
}

// Store is a file-backed credentials.Store. The file is the source of truth;
// an in-memory copy serves reads and every write reaches disk before returning.
type Store struct {
	path   string
	sealer *sealer
	lock   sync.RWMutex
	creds  credentials.Credentials
}

// Option configures a Store.
type Option func(*Store) error

// WithPassphrase encrypts the file with a key derived from passphrase.
// An empty passphrase leaves the file in plain JSON.
func WithPassphrase(passphrase string) Option {
	return func(s *Store) error {
		if passphrase == "" {
			return nil
		}
		sl, err := newSealer(passphrase)
		if err != nil {
			return err
		}
		s.sealer = sl
		return nil
	}
}

// New opens the store at path, loading any credentials already persisted there.
// An unreadable or undecryptable file is discarded and the store starts empty.
func New(path string, options ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("[filestore.New] path is required")
	}
	s := &Store{path: path}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("[filestore.New] %w", err)
		}
	}

	creds, err := s.load()
	switch {
	case err == nil:
		s.creds = creds
	case errors.Is(err, autherrors.ErrStoreCorrupt):
		log.Warn().Err(err).Str("path", path).Msg("Discarding unreadable credentials file")
		if err := s.remove(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s, nil
}

// Path returns the location of the credentials file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context) (credentials.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.creds.Clone(), nil
}

func (s *Store) Set(_ context.Context, accessToken, refreshToken string, profile *credentials.UserProfile) error {
	return s.update(func(c *credentials.Credentials) {
		c.AccessToken = accessToken
		c.RefreshToken = refreshToken
		c.Profile = profile
	})
}

func (s *Store) SetTokens(_ context.Context, accessToken, refreshToken string) error {
	return s.update(func(c *credentials.Credentials) {
		c.AccessToken = accessToken
		c.RefreshToken = refreshToken
	})
}

func (s *Store) SetProfile(_ context.Context, profile *credentials.UserProfile) error {
	return s.update(func(c *credentials.Credentials) {
		c.Profile = profile
	})
}

// Clear deletes the file. Readers see either the full old snapshot or nothing.
func (s *Store) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.remove(); err != nil {
		return err
	}
	s.creds = credentials.Credentials{}
	return nil
}

func (s *Store) update(mutate func(*credentials.Credentials)) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	next := s.creds.Clone()
	mutate(&next)
	next = next.Clone()
	if err := s.persist(next); err != nil {
		return err
	}
	s.creds = next
	return nil
}

func (s *Store) load() (credentials.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return credentials.Credentials{}, nil
	}
	if err != nil {
		return credentials.Credentials{}, &credentials.StoreError{Operation: "load", Backend: backendName, Cause: err}
	}

	if s.sealer != nil {
		if data, err = s.sealer.open(data); err != nil {
			return credentials.Credentials{}, &credentials.StoreError{Operation: "load", Backend: backendName, Cause: autherrors.Wrapf(autherrors.ErrStoreCorrupt, "%v", err)}
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return credentials.Credentials{}, &credentials.StoreError{Operation: "load", Backend: backendName, Cause: autherrors.Wrapf(autherrors.ErrStoreCorrupt, "%v", err)}
	}
	return credentials.Credentials{
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
		Profile:      doc.User,
	}, nil
}

func (s *Store) persist(c credentials.Credentials) error {
	data, err := json.Marshal(document{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		User:         c.Profile,
	})
	if err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	if s.sealer != nil {
		if data, err = s.sealer.seal(data); err != nil {
			return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
		}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	return nil
}

func (s *Store) remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &credentials.StoreError{Operation: "clear", Backend: backendName, Cause: err}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path so a crash never leaves a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
