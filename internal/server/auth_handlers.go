package server

import (
	"errors"
	"net/http"

	"github.com/cms-front/cms-front/internal/config"
	"github.com/cms-front/cms-front/internal/cookie"
	jsonwriter "github.com/cms-front/cms-front/internal/json"
	"github.com/cms-front/cms-front/internal/log"
	"github.com/cms-front/cms-front/internal/metrics"
	"github.com/cms-front/cms-front/internal/oauth"
)

// AuthHandlers serves the front-end facing auth endpoints: token exchange and
// logout. Both operate on the visitor's refresh token cookie; neither ever
// caches access tokens server-side.
type AuthHandlers struct {
	backend config.BackendConfig
}

// NewAuthHandlers creates the auth endpoint handlers for one backend.
func NewAuthHandlers(backend config.BackendConfig) *AuthHandlers {
	return &AuthHandlers{backend: backend}
}

// exchangeClient binds a per-request exchange client to the request's cookies.
func (h *AuthHandlers) exchangeClient(w http.ResponseWriter, r *http.Request) *oauth.Client {
	return oauth.NewClient(h.backend, cookie.NewJar(r, w))
}

// TokenHandler exchanges an authorization code, or the cookie's refresh token,
// for a token set. Without either it responds 401 before touching the backend.
// On success the new refresh token is persisted and the token set returned as
// JSON; on failure the refresh cookie is cleared since a stale, revoked, or
// cross-environment token is the most likely cause.
func (h *AuthHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	client := h.exchangeClient(w, r)

	if client.RefreshToken() == "" && code == "" {
		jsonwriter.WriteUnauthorized(w, "Unauthorized")
		return
	}

	tokens, err := client.Exchange(r.Context(), code)
	if err != nil {
		var exchangeErr *oauth.ExchangeError
		switch {
		case errors.As(err, &exchangeErr):
			client.ClearRefreshToken()
			status := exchangeErr.SurfaceStatus()
			log.LogDebugWithFields("auth", "Token exchange failed", map[string]any{
				"backend_status": exchangeErr.StatusCode,
				"status":         status,
			})
			if len(exchangeErr.Body) > 0 {
				jsonwriter.WriteRaw(w, status, exchangeErr.Body)
			} else {
				jsonwriter.WriteError(w, status, "unauthorized", "Token exchange failed")
			}
		case errors.Is(err, oauth.ErrMissingSecret):
			log.LogError("Token handler misconfigured: %v", err)
			jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		default:
			log.LogError("Token exchange transport failure: %v", err)
			jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		}
		return
	}

	client.SetRefreshToken(tokens.RefreshToken, 0)
	_ = jsonwriter.Write(w, tokens)
}

// LogoutHandler clears the refresh token cookie. Only POST is accepted:
// browsers may speculatively prefetch GET, which must never trigger a
// destructive action. Responds 205 so the client resets local state; the
// clear is idempotent and succeeds whether or not a session existed.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	h.exchangeClient(w, r).ClearRefreshToken()
	metrics.Logouts.Inc()
	w.WriteHeader(http.StatusResetContent)
}
