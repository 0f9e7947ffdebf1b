package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solestore-payments/config"
	"solestore-payments/internal/domain"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	// tokenSafetyMargin is subtracted from the gateway's expires_in so a
	// token is never handed out moments before it dies mid-request.
	tokenSafetyMargin = 300 * time.Second

	defaultTokenTTL = 3600 * time.Second
)

// cachedToken is swapped atomically so concurrent callers never observe a
// half-written value/expiry pair. Refresh races are harmless: last writer
// wins and a redundant exchange is the worst case.
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// Client talks to the Daraja API. It owns the process-wide OAuth token
// cache; the token is never persisted and is recreated on restart.
type Client struct {
	cfg        config.MpesaConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	token atomic.Pointer[cachedToken]
}

func NewClient(cfg config.MpesaConfig, logger *zap.Logger) *Client {
	baseURL := sandboxBaseURL
	if cfg.Environment == "production" {
		baseURL = productionBaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// AccessToken returns a cached bearer token, exchanging credentials with
// the gateway only when no unexpired token is held.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.cfg.ConsumerKey == "" || c.cfg.ConsumerSecret == "" {
		return "", &domain.AuthError{Reason: "consumer key and secret are not configured"}
	}

	if tok := c.token.Load(); tok != nil && time.Now().Before(tok.expiresAt) {
		return tok.value, nil
	}
	return c.exchangeToken(ctx)
}

// ForceRefresh drops the cached token unconditionally and exchanges a new
// one. Used for error recovery when the gateway rejects a stale token.
func (c *Client) ForceRefresh(ctx context.Context) (string, error) {
	c.token.Store(nil)
	return c.exchangeToken(ctx)
}

func (c *Client) exchangeToken(ctx context.Context) (string, error) {
	url := c.baseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &domain.AuthError{Reason: "building token request", Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.AuthError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", &domain.AuthError{
			Reason: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", &domain.AuthError{Reason: "decoding token response", Err: err}
	}
	if res.AccessToken == "" {
		return "", &domain.AuthError{Reason: "no access token in response"}
	}

	ttl := defaultTokenTTL
	if secs, err := strconv.Atoi(res.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	tok := &cachedToken{
		value:     res.AccessToken,
		expiresAt: time.Now().Add(ttl - tokenSafetyMargin),
	}
	c.token.Store(tok)

	c.logger.Info("mpesa oauth token refreshed",
		zap.Duration("ttl", ttl),
		zap.Time("expires_at", tok.expiresAt))

	return tok.value, nil
}

// TokenStatus describes the cache for the diagnostics endpoint.
type TokenStatus struct {
	HasToken  bool  `json:"has_token"`
	Valid     bool  `json:"valid"`
	ExpiresIn int64 `json:"expires_in_seconds,omitempty"`
}

func (c *Client) TokenStatus() TokenStatus {
	tok := c.token.Load()
	if tok == nil {
		return TokenStatus{}
	}
	remaining := time.Until(tok.expiresAt)
	if remaining <= 0 {
		return TokenStatus{HasToken: true}
	}
	return TokenStatus{HasToken: true, Valid: true, ExpiresIn: int64(remaining.Seconds())}
}

// Environment returns the Daraja environment this client targets.
func (c *Client) Environment() string {
	if c.cfg.Environment == "production" {
		return "production"
	}
	return "sandbox"
}

// HasCredentials reports config presence without exposing secrets.
func (c *Client) HasCredentials() bool {
	return c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != "" && c.cfg.Passkey != ""
}
