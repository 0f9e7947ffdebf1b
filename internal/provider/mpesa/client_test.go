package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solestore-payments/config"
	"solestore-payments/internal/domain"
)

func testConfig(baseURL string) config.MpesaConfig {
	return config.MpesaConfig{
		Environment:    "sandbox",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/api/v1/callbacks/mpesa/stk",
		BaseURL:        baseURL,
	}
}

func tokenResponse(w http.ResponseWriter, token string) {
	json.NewEncoder(w).Encode(map[string]string{
		"access_token": token,
		"expires_in":   "3599",
	})
}

func TestAccessTokenCaching(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v1/generate", r.URL.Path)
		require.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)

		n := exchanges.Add(1)
		tokenResponse(w, fmt.Sprintf("token-%d", n))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	ctx := context.Background()

	tok, err := client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	// Second call is served from cache.
	tok, err = client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, int32(1), exchanges.Load())

	status := client.TokenStatus()
	assert.True(t, status.HasToken)
	assert.True(t, status.Valid)
	// The safety margin is shaved off the advertised lifetime.
	assert.LessOrEqual(t, status.ExpiresIn, int64(3599-300))
}

func TestForceRefresh(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := exchanges.Add(1)
		tokenResponse(w, fmt.Sprintf("token-%d", n))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	ctx := context.Background()

	_, err := client.AccessToken(ctx)
	require.NoError(t, err)

	tok, err := client.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestAccessTokenWithoutCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.ConsumerKey = ""
	client := NewClient(cfg, zap.NewNop())

	// Fails fast; no network call is attempted.
	_, err := client.AccessToken(context.Background())
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestAccessTokenGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())

	_, err := client.AccessToken(context.Background())
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "400")

	// Nothing was cached.
	assert.False(t, client.TokenStatus().HasToken)
}

func TestEnvironmentAndCredentials(t *testing.T) {
	cfg := testConfig("")
	client := NewClient(cfg, zap.NewNop())
	assert.Equal(t, "sandbox", client.Environment())
	assert.True(t, client.HasCredentials())

	cfg.Environment = "production"
	cfg.Passkey = ""
	client = NewClient(cfg, zap.NewNop())
	assert.Equal(t, "production", client.Environment())
	assert.False(t, client.HasCredentials())
}
