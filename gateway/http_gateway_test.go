package gateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/gateway"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/stretchr/testify/require"
)

var testUser = map[string]any{
	"id":       "user-1",
	"name":     "Bea Buyer",
	"email":    "a@x.com",
	"role":     "buyer",
	"siteId":   "site-1",
	"siteName": "Main",
}

// testAPI routes auth endpoints to handlers and records request bodies.
type testAPI struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc

	lock   sync.Mutex
	bodies map[string]map[string]string
}

func (a *testAPI) body(path string) map[string]string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.bodies[path]
}

func newTestAPI(t *testing.T) (*testAPI, *gateway.HTTPGateway) {
	t.Helper()
	api := &testAPI{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		bodies:   make(map[string]map[string]string),
	}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)

	gw, err := gateway.New(srv.URL+"/", gateway.WithNowTime(func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return api, gw
}

func (a *testAPI) handle(route string, h http.HandlerFunc) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.handlers[route] = h
}

func (a *testAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil && r.ContentLength != 0 {
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.lock.Lock()
		a.bodies[r.URL.Path] = body
		a.lock.Unlock()
	}
	a.lock.Lock()
	h, ok := a.handlers[r.Method+" "+r.URL.Path]
	a.lock.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPGateway_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("authenticated", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.LoginPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"accessToken":  "access-1",
				"refreshToken": "refresh-1",
				"expiresIn":    900,
				"user":         testUser,
			})
		})

		result, err := gw.Login(ctx, "a@x.com", "p")
		require.NoError(t, err)
		require.True(t, result.Authenticated())
		require.Equal(t, "access-1", result.Token.AccessToken)
		require.Equal(t, "refresh-1", result.Token.RefreshToken)
		require.Equal(t, time.Date(2026, 1, 1, 12, 15, 0, 0, time.UTC), result.Token.Expiry)
		require.Equal(t, credentials.RoleBuyer, result.Profile.Role)
		require.Equal(t, "site-1", result.Profile.SiteID)
		require.Equal(t, map[string]string{"email": "a@x.com", "password": "p"}, api.body(gateway.LoginPath))
	})

	t.Run("verification required", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.LoginPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"verificationRequired": true, "email": "a@x.com"})
		})

		result, err := gw.Login(ctx, "A@X.com", "p")
		require.NoError(t, err)
		require.False(t, result.Authenticated())
		require.True(t, result.VerificationRequired)
		require.Equal(t, "a@x.com", result.Email)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.LoginPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "wrong password"})
		})

		_, err := gw.Login(ctx, "a@x.com", "bad")
		require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)

		var gwErr *autherrors.GatewayError
		require.ErrorAs(t, err, &gwErr)
		require.Equal(t, gateway.OpLogin, gwErr.Op)
		require.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
		require.Equal(t, "wrong password", gwErr.Message)
	})

	t.Run("incomplete session is a failure", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.LoginPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "only-access"})
		})

		_, err := gw.Login(ctx, "a@x.com", "p")
		require.ErrorIs(t, err, autherrors.ErrBadResponse)
	})
}

func TestHTTPGateway_VerifyAndResend(t *testing.T) {
	ctx := context.Background()
	api, gw := newTestAPI(t)

	api.handle("POST "+gateway.VerifyCodePath, func(w http.ResponseWriter, r *http.Request) {
		if api.body(gateway.VerifyCodePath)["code"] != "123456" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code mismatch"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  "access-1",
			"refreshToken": "refresh-1",
			"user":         testUser,
		})
	})
	api.handle("POST "+gateway.ResendCodePath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "slow down"})
	})

	_, err := gw.VerifyCode(ctx, "a@x.com", "000000")
	require.ErrorIs(t, err, autherrors.ErrInvalidCode)
	require.Contains(t, err.Error(), "code mismatch")

	result, err := gw.VerifyCode(ctx, "a@x.com", "123456")
	require.NoError(t, err)
	require.True(t, result.Authenticated())
	require.Equal(t, "a@x.com", api.body(gateway.VerifyCodePath)["email"])

	err = gw.ResendCode(ctx, "a@x.com")
	require.ErrorIs(t, err, autherrors.ErrRateLimited)
}

func TestHTTPGateway_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotating", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "access-2", "refreshToken": "refresh-2"})
		})

		tok, err := gw.Refresh(ctx, "refresh-1")
		require.NoError(t, err)
		require.Equal(t, "access-2", tok.AccessToken)
		require.Equal(t, "refresh-2", tok.RefreshToken)
		require.Equal(t, "refresh-1", api.body(gateway.RefreshPath)["refreshToken"])
	})

	t.Run("non rotating keeps refresh token", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "access-2"})
		})

		tok, err := gw.Refresh(ctx, "refresh-1")
		require.NoError(t, err)
		require.Equal(t, "refresh-1", tok.RefreshToken)
	})

	t.Run("rejected", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := gw.Refresh(ctx, "expired")
		require.ErrorIs(t, err, autherrors.ErrInvalidRefreshToken)
		require.True(t, autherrors.IsTerminalRefresh(err))
	})

	for _, status := range []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity} {
		t.Run(fmt.Sprintf("rejected with %d", status), func(t *testing.T) {
			api, gw := newTestAPI(t)
			api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			})

			_, err := gw.Refresh(ctx, "refresh-1")
			require.ErrorIs(t, err, autherrors.ErrInvalidRefreshToken)
			require.True(t, autherrors.IsTerminalRefresh(err))
		})
	}

	t.Run("missing access token", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{})
		})

		_, err := gw.Refresh(ctx, "refresh-1")
		require.ErrorIs(t, err, autherrors.ErrInvalidRefreshToken)
	})

	t.Run("rate limited is not terminal", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := gw.Refresh(ctx, "refresh-1")
		require.ErrorIs(t, err, autherrors.ErrRateLimited)
		require.False(t, autherrors.IsTerminalRefresh(err))
	})

	t.Run("server error is not terminal", func(t *testing.T) {
		api, gw := newTestAPI(t)
		api.handle("POST "+gateway.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := gw.Refresh(ctx, "refresh-1")
		require.ErrorIs(t, err, autherrors.ErrNetworkFailure)
		require.False(t, autherrors.IsTerminalRefresh(err))
	})
}

func TestHTTPGateway_LogoutAndProfile(t *testing.T) {
	ctx := context.Background()
	api, gw := newTestAPI(t)

	api.handle("POST "+gateway.LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, gw.Logout(ctx))

	api.handle("GET "+gateway.ProfilePath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": testUser})
	})
	profile, err := gw.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "user-1", profile.ID)

	api.handle("GET "+gateway.ProfilePath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, testUser)
	})
	profile, err = gw.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "Bea Buyer", profile.Name)

	api.handle("GET "+gateway.ProfilePath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err = gw.Profile(ctx)
	require.ErrorIs(t, err, autherrors.ErrUnauthenticated)
}

func TestHTTPGateway_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw, err := gateway.New(url)
	require.NoError(t, err)

	_, err = gw.Login(context.Background(), "a@x.com", "p")
	require.ErrorIs(t, err, autherrors.ErrNetworkFailure)
}

func TestHTTPGateway_ContextCancelled(t *testing.T) {
	_, gw := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Login(ctx, "a@x.com", "p")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := gateway.New("/just/a/path")
	require.Error(t, err)
}

func TestUnauthenticatedPaths(t *testing.T) {
	require.ElementsMatch(t, []string{
		gateway.LoginPath,
		gateway.VerifyCodePath,
		gateway.ResendCodePath,
		gateway.RefreshPath,
	}, gateway.UnauthenticatedPaths())
}
