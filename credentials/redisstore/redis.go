// Package redisstore persists session credentials in Redis, one key per slot.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-session/credentials"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/redis/go-redis/v9"
)

const backendName = "redis"

var _ credentials.Store = (*Store)(nil)

// Store is a Redis-backed credentials.Store. Slots live under
// "{<prefix>}:accessToken", "{<prefix>}:refreshToken" and "{<prefix>}:user".
// The braces are a cluster hash tag: all three keys hash to one slot, so the
// multi-key commands below also work against Redis Cluster.
//
// Get reads all three keys with one MGET, writes go through MULTI/EXEC and
// Clear deletes all three keys in a single DEL, so readers never observe a
// half-written or half-cleared session.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New returns a store using client. The caller owns the client's lifecycle.
func New(client redis.UniversalClient, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("[redisstore.New] client is required")
	}
	if prefix == "" {
		prefix = "authclient"
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) key(slot string) string {
	return "{" + s.prefix + "}:" + slot
}

func (s *Store) keys() []string {
	return []string{
		s.key(credentials.AccessTokenKey),
		s.key(credentials.RefreshTokenKey),
		s.key(credentials.ProfileKey),
	}
}

func (s *Store) Get(ctx context.Context) (credentials.Credentials, error) {
	values, err := s.client.MGet(ctx, s.keys()...).Result()
	if err != nil {
		return credentials.Credentials{}, &credentials.StoreError{Operation: "load", Backend: backendName, Cause: err}
	}

	var creds credentials.Credentials
	creds.AccessToken, _ = values[0].(string)
	creds.RefreshToken, _ = values[1].(string)
	if raw, ok := values[2].(string); ok && raw != "" {
		var profile credentials.UserProfile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			return credentials.Credentials{}, &credentials.StoreError{
				Operation: "load",
				Backend:   backendName,
				Cause:     autherrors.Wrapf(autherrors.ErrStoreCorrupt, "profile: %v", err),
			}
		}
		creds.Profile = &profile
	}
	return creds, nil
}

func (s *Store) Set(ctx context.Context, accessToken, refreshToken string, profile *credentials.UserProfile) error {
	profileJSON, err := encodeProfile(profile)
	if err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setOrDel(ctx, pipe, s.key(credentials.AccessTokenKey), accessToken)
		setOrDel(ctx, pipe, s.key(credentials.RefreshTokenKey), refreshToken)
		setOrDel(ctx, pipe, s.key(credentials.ProfileKey), profileJSON)
		return nil
	})
	if err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	return nil
}

func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setOrDel(ctx, pipe, s.key(credentials.AccessTokenKey), accessToken)
		setOrDel(ctx, pipe, s.key(credentials.RefreshTokenKey), refreshToken)
		return nil
	})
	if err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	return nil
}

func (s *Store) SetProfile(ctx context.Context, profile *credentials.UserProfile) error {
	profileJSON, err := encodeProfile(profile)
	if err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	if profileJSON == "" {
		err = s.client.Del(ctx, s.key(credentials.ProfileKey)).Err()
	} else {
		err = s.client.Set(ctx, s.key(credentials.ProfileKey), profileJSON, 0).Err()
	}
	if err != nil {
		return &credentials.StoreError{Operation: "save", Backend: backendName, Cause: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.keys()...).Err(); err != nil {
		return &credentials.StoreError{Operation: "clear", Backend: backendName, Cause: err}
	}
	return nil
}

func setOrDel(ctx context.Context, pipe redis.Pipeliner, key, value string) {
	if value == "" {
		pipe.Del(ctx, key)
		return
	}
	pipe.Set(ctx, key, value, 0)
}

func encodeProfile(profile *credentials.UserProfile) (string, error) {
	if profile == nil {
		return "", nil
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("encoding profile: %w", err)
	}
	return string(data), nil
}
