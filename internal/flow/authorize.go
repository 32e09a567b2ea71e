package flow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cms-front/cms-front/internal/accesstoken"
	"github.com/cms-front/cms-front/internal/log"
	"github.com/cms-front/cms-front/internal/oauth"
	"github.com/cms-front/cms-front/internal/urlutil"
)

// Authorizer obtains access tokens from the front-end's own auth API and
// keeps the store's refresh timer armed. It never talks to the content
// backend directly; the auth API holds the shared secret.
type Authorizer struct {
	apiBase    string
	backendURL string
	store      *accesstoken.Store
	httpClient *http.Client
}

// AuthorizerOption customizes an Authorizer.
type AuthorizerOption func(*Authorizer)

// WithHTTPClient overrides the HTTP client used to call the auth API.
func WithHTTPClient(c *http.Client) AuthorizerOption {
	return func(a *Authorizer) {
		a.httpClient = c
	}
}

// NewAuthorizer builds an Authorizer calling the auth API rooted at apiBase.
// Redirect targets for unauthorized visitors are built against backendURL.
// The store's refresh hook is wired so an expiring token re-fetches itself.
func NewAuthorizer(apiBase, backendURL string, store *accesstoken.Store, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		apiBase:    apiBase,
		backendURL: backendURL,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	store.SetRefreshFunc(func() {
		if _, err := a.FetchAccessToken(context.Background(), ""); err != nil {
			log.LogErrorWithFields("flow", "background token refresh failed", map[string]any{
				"error": err.Error(),
			})
		}
	})
	return a
}

// FetchAccessToken exchanges the optional one-time code (or the refresh token
// cookie riding along with the request) for an access token via the auth API.
// It returns an empty token when the backend declines the exchange, and an
// error only for transport or response-shape failures. On success the token
// is stored and the refresh timer re-armed.
func (a *Authorizer) FetchAccessToken(ctx context.Context, code string) (string, error) {
	endpoint := urlutil.MustJoinPath(a.apiBase, "token")
	if code != "" {
		endpoint += "?code=" + url.QueryEscape(code)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.store.Clear()
		return "", fmt.Errorf("fetching access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.store.Clear()
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.store.Clear()
		return "", fmt.Errorf("reading token response: %w", err)
	}
	tokens, err := oauth.ParseTokenSet(body)
	if err != nil {
		a.store.Clear()
		return "", fmt.Errorf("parsing token response: %w", err)
	}

	a.store.Set(tokens.AccessToken, tokens.AccessTokenExpiration)
	a.store.ClearRefreshTimer()
	a.store.ArmRefreshTimer()
	return tokens.AccessToken, nil
}

// Authorization is the outcome of EnsureAuthorization. When Authorized is
// false, Redirect points at the backend's code-granting endpoint and Login,
// if set, at a configured login page.
type Authorization struct {
	Authorized bool
	Redirect   string
	Login      string
}

// EnsureOptions configures EnsureAuthorization for one page view.
type EnsureOptions struct {
	// RedirectURI is where the backend should send the visitor back to,
	// code in hand. Usually the current URL.
	RedirectURI string
	// LoginPageURI optionally names a login page to surface instead of
	// navigating straight to the backend.
	LoginPageURI string
}

// EnsureAuthorization makes sure the current visitor holds a valid access
// token, exchanging the one-time code found in currentURL when present.
// An unauthorized result carries navigation targets; an error means the
// attempt itself failed and the caller must not navigate.
func (a *Authorizer) EnsureAuthorization(ctx context.Context, currentURL string, opts EnsureOptions) (Authorization, error) {
	unauthorized := Authorization{Login: opts.LoginPageURI}
	if opts.RedirectURI != "" {
		unauthorized.Redirect = urlutil.MustJoinPath(a.backendURL, "generate") +
			"?redirect_uri=" + url.QueryEscape(opts.RedirectURI)
	}

	code := urlutil.QueryParam(currentURL, "code")
	token, err := a.FetchAccessToken(ctx, code)
	if err != nil {
		return Authorization{}, err
	}
	if token == "" {
		return unauthorized, nil
	}
	return Authorization{Authorized: true}, nil
}
