package redisstore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/credentials/redisstore"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testProfile = &credentials.UserProfile{
	ID:     "user-9",
	Name:   "Sam Seller",
	Email:  "sam@example.com",
	Role:   credentials.RoleSeller,
	SiteID: "site-2",
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *redisstore.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := redisstore.New(client, "test")
	require.NoError(t, err)
	return mr, s
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))

	creds, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, creds.Complete())
	require.Equal(t, "access-1", creds.AccessToken)
	require.Equal(t, "refresh-1", creds.RefreshToken)
	require.Equal(t, testProfile, creds.Profile)

	got, err := mr.Get("{test}:accessToken")
	require.NoError(t, err)
	require.Equal(t, "access-1", got)
	got, err = mr.Get("{test}:refreshToken")
	require.NoError(t, err)
	require.Equal(t, "refresh-1", got)
	require.True(t, mr.Exists("{test}:user"))
}

func TestStore_SetTokensAndProfile(t *testing.T) {
	ctx := context.Background()
	_, s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))
	require.NoError(t, s.SetTokens(ctx, "access-2", "refresh-2"))

	creds, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-2", creds.AccessToken)
	require.Equal(t, "refresh-2", creds.RefreshToken)
	require.Equal(t, testProfile, creds.Profile)

	require.NoError(t, s.SetProfile(ctx, nil))
	creds, err = s.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, creds.Profile)
	require.Equal(t, "access-2", creds.AccessToken)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))
	require.NoError(t, s.Clear(ctx))

	creds, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())
	require.False(t, mr.Exists("{test}:accessToken"))
	require.False(t, mr.Exists("{test}:refreshToken"))
	require.False(t, mr.Exists("{test}:user"))
}

func TestStore_CorruptProfile(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)

	require.NoError(t, mr.Set("{test}:user", "{broken"))
	_, err := s.Get(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, autherrors.ErrStoreCorrupt)
}

func TestStore_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)
	mr.Close()

	_, err := s.Get(ctx)
	require.Error(t, err)

	var storeErr *credentials.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "load", storeErr.Operation)
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := redisstore.New(nil, "x")
	require.Error(t, err)
}

func TestStore_KeysShareClusterSlot(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))

	keys := mr.Keys()
	require.Len(t, keys, 3)
	for _, key := range keys {
		require.True(t, strings.HasPrefix(key, "{test}:"), key)
	}
}
