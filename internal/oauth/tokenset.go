package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TokenSet is the backend's authorize response: a short-lived access token and
// a long-lived refresh token, each with an epoch-seconds expiration.
type TokenSet struct {
	AccessToken            string `json:"accessToken"`
	AccessTokenExpiration  int64  `json:"accessTokenExpiration"`
	RefreshToken           string `json:"refreshToken"`
	RefreshTokenExpiration int64  `json:"refreshTokenExpiration"`
}

// ErrMalformedTokenSet indicates a response body that does not carry all four
// required token set fields with the expected types.
var ErrMalformedTokenSet = errors.New("response is not a valid token set")

// ParseTokenSet validates a backend response body at the trust boundary.
// All four fields must be present and correctly typed; anything else is
// treated as an authorization failure by callers.
func ParseTokenSet(body []byte) (*TokenSet, error) {
	var raw struct {
		AccessToken            *string `json:"accessToken"`
		AccessTokenExpiration  *int64  `json:"accessTokenExpiration"`
		RefreshToken           *string `json:"refreshToken"`
		RefreshTokenExpiration *int64  `json:"refreshTokenExpiration"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTokenSet, err)
	}
	if raw.AccessToken == nil || raw.AccessTokenExpiration == nil ||
		raw.RefreshToken == nil || raw.RefreshTokenExpiration == nil {
		return nil, ErrMalformedTokenSet
	}

	return &TokenSet{
		AccessToken:            *raw.AccessToken,
		AccessTokenExpiration:  *raw.AccessTokenExpiration,
		RefreshToken:           *raw.RefreshToken,
		RefreshTokenExpiration: *raw.RefreshTokenExpiration,
	}, nil
}

// ExchangeError is an authorization failure from the backend: a non-success
// status, or a success status whose body failed token set validation. It
// carries the original status and body so request handlers can pass both
// through to the caller.
type ExchangeError struct {
	StatusCode int
	Body       []byte
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange rejected: status %d", e.StatusCode)
}

// SurfaceStatus is the HTTP status a handler should respond with. Backend
// error statuses pass through; a success status that still failed validation
// surfaces as 401.
func (e *ExchangeError) SurfaceStatus() int {
	if e.StatusCode > 299 {
		return e.StatusCode
	}
	return http.StatusUnauthorized
}
