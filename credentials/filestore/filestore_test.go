package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/credentials/filestore"
	"github.com/stretchr/testify/require"
)

var testProfile = &credentials.UserProfile{
	ID:       "user-1",
	Name:     "Ada Driver",
	Email:    "ada@example.com",
	Role:     credentials.RoleDriver,
	SiteID:   "site-7",
	SiteName: "North Depot",
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	s, err := filestore.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))

	reopened, err := filestore.New(path)
	require.NoError(t, err)
	creds, err := reopened.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", creds.AccessToken)
	require.Equal(t, "refresh-1", creds.RefreshToken)
	require.Equal(t, testProfile, creds.Profile)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_SlotsUseWellKnownKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	s, err := filestore.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"accessToken":"access-1"`)
	require.Contains(t, string(data), `"refreshToken":"refresh-1"`)
	require.Contains(t, string(data), `"user":{`)
}

func TestStore_SetTokensKeepsProfile(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.New(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "access-1", "refresh-1", testProfile))
	require.NoError(t, s.SetTokens(ctx, "access-2", "refresh-2"))

	creds, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-2", creds.AccessToken)
	require.Equal(t, "refresh-2", creds.RefreshToken)
	require.Equal(t, testProfile, creds.Profile)

	updated := *testProfile
	updated.SiteName = "South Depot"
	require.NoError(t, s.SetProfile(ctx, &updated))
	creds, err = s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "South Depot", creds.Profile.SiteName)
	require.Equal(t, "access-2", creds.AccessToken)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.New(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", "r", testProfile))

	creds, err := s.Get(ctx)
	require.NoError(t, err)
	creds.Profile.Name = "mutated"

	again, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ada Driver", again.Profile.Name)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := filestore.New(path)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a", "r", testProfile))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx)) // idempotent

	creds, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	reopened, err := filestore.New(path)
	require.NoError(t, err)
	creds, err = reopened.Get(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())
}

func TestStore_ConcurrentClearNeverPartial(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.New(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", "r", testProfile))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	partial := make(chan credentials.Credentials, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				creds, _ := s.Get(ctx)
				if !creds.Complete() && !creds.Empty() {
					select {
					case partial <- creds:
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Set(ctx, "a", "r", testProfile))
	}
	close(stop)
	wg.Wait()

	select {
	case creds := <-partial:
		t.Fatalf("observed partial snapshot: %+v", creds)
	default:
	}
}

func TestStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	s, err := filestore.New(path, filestore.WithPassphrase("correct horse"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "secret-access", "secret-refresh", testProfile))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret-access")
	require.NotContains(t, string(data), "Ada Driver")

	t.Run("same passphrase decrypts", func(t *testing.T) {
		reopened, err := filestore.New(path, filestore.WithPassphrase("correct horse"))
		require.NoError(t, err)
		creds, err := reopened.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "secret-access", creds.AccessToken)
		require.Equal(t, testProfile, creds.Profile)
	})

	t.Run("wrong passphrase discards the session", func(t *testing.T) {
		reopened, err := filestore.New(path, filestore.WithPassphrase("battery staple"))
		require.NoError(t, err)
		creds, err := reopened.Get(ctx)
		require.NoError(t, err)
		require.True(t, creds.Empty())
		_, err = os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := filestore.New(path)
	require.NoError(t, err)
	creds, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := filestore.New("")
	require.Error(t, err)
}
