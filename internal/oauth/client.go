// Package oauth implements the token exchange protocol spoken by the content
// backend: an authorization code or refresh token is traded for a fresh token
// set via a pre-shared secret. This is a protocol client for exactly one
// backend, not a general OAuth library.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cms-front/cms-front/internal/config"
	"github.com/cms-front/cms-front/internal/cookie"
	"github.com/cms-front/cms-front/internal/envutil"
	"github.com/cms-front/cms-front/internal/log"
	"github.com/cms-front/cms-front/internal/metrics"
)

const (
	authorizeRoute     = "/?rest_route=/plugin-ns/v1/authorize"
	secretHeader       = "x-plugin-secret"
	legacyRoute        = "/?rest_route=/legacy-ns/v1/authorize"
	legacySecretHeader = "x-legacy-secret"

	// DefaultRefreshTokenMaxAge is applied when the backend supplies no
	// explicit refresh token expiration: 30 days.
	DefaultRefreshTokenMaxAge = 2592000
)

// ErrMissingSecret is a configuration error: the pre-shared backend secret is
// required before any exchange can be attempted.
var ErrMissingSecret = errors.New("backend secret must be configured to use the auth handlers")

// Client executes token exchanges for one visitor against the configured
// backend. It is bound to the visitor's cookie jar, where the refresh token is
// persisted between exchanges.
type Client struct {
	backendURL string
	secret     config.Secret
	httpClient *http.Client
	jar        *cookie.Jar
}

// NewClient creates an exchange client bound to a request's cookie jar.
func NewClient(backend config.BackendConfig, jar *cookie.Jar) *Client {
	return &Client{
		backendURL: backend.URL,
		secret:     backend.Secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		jar:        jar,
	}
}

// Cookie names must be RFC 6265 tokens, so the scheme separator and any
// path or port delimiters are stripped from the backend URL.
var cookieNameSanitizer = strings.NewReplacer("https://", "", "http://", "", "/", "-", ":", "-")

// RefreshTokenKey derives the cookie name from the backend URL so multiple
// backend instances or environments never collide.
func (c *Client) RefreshTokenKey() string {
	return cookieNameSanitizer.Replace(c.backendURL) + "-rt"
}

// RefreshToken returns the visitor's current refresh token, or "".
func (c *Client) RefreshToken() string {
	token, _ := c.jar.Get(c.RefreshTokenKey())
	return token
}

// SetRefreshToken persists a refresh token in the cookie. An empty token
// clears the cookie instead. When expires is a positive epoch timestamp the
// cookie carries that explicit expiration; otherwise it gets the default
// 30-day MaxAge. The two are never combined.
func (c *Client) SetRefreshToken(token string, expires int64) {
	if token == "" {
		c.ClearRefreshToken()
		return
	}

	attrs := cookie.Attributes{
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   !envutil.IsDev(),
		HttpOnly: true,
	}
	if expires > 0 {
		attrs.Expires = time.Unix(expires, 0).UTC()
	} else {
		attrs.MaxAge = DefaultRefreshTokenMaxAge
	}
	c.jar.Set(c.RefreshTokenKey(), token, attrs)
}

// ClearRefreshToken removes the refresh token cookie.
func (c *Client) ClearRefreshToken() {
	c.jar.Remove(c.RefreshTokenKey())
}

// Exchange trades an authorization code, or the stored refresh token when the
// code is empty, for a new token set. A 404 from the primary endpoint retries
// the same payload against the deprecated legacy endpoint; no other status
// triggers the fallback. Failures are returned as *ExchangeError carrying the
// backend's status and body; transport errors are returned as-is.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	if c.secret == "" {
		return nil, ErrMissingSecret
	}

	payload, err := json.Marshal(struct {
		Code         string `json:"code,omitempty"`
		RefreshToken string `json:"refreshToken,omitempty"`
	}{
		Code:         code,
		RefreshToken: c.RefreshToken(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding exchange payload: %w", err)
	}

	start := time.Now()
	resp, err := c.post(ctx, c.backendURL+authorizeRoute, secretHeader, payload)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeTransport).Inc()
		return nil, fmt.Errorf("authorize request failed: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		// Older backends only expose the deprecated endpoint
		_ = resp.Body.Close()
		metrics.LegacyFallbacks.Inc()

		resp, err = c.post(ctx, c.backendURL+legacyRoute, legacySecretHeader, payload)
		if err != nil {
			metrics.TokenExchanges.WithLabelValues(metrics.OutcomeTransport).Inc()
			return nil, fmt.Errorf("legacy authorize request failed: %w", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			log.LogWarn("Authentication and previews will soon be incompatible with your backend plugin version, please update to the latest version")
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeTransport).Inc()
		return nil, fmt.Errorf("reading authorize response: %w", err)
	}
	metrics.TokenExchangeDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: body}
	}

	tokens, err := ParseTokenSet(body)
	if err != nil {
		log.LogDebugWithFields("oauth", "Authorize response failed token set validation", map[string]any{
			"status": resp.StatusCode,
			"error":  err.Error(),
		})
		metrics.TokenExchanges.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: body}
	}

	metrics.TokenExchanges.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return tokens, nil
}

func (c *Client) post(ctx context.Context, url, header string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, string(c.secret))
	return c.httpClient.Do(req)
}
