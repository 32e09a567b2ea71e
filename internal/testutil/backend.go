package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest captures one authorize call received by a BackendStub.
type RecordedRequest struct {
	Route  string
	Header http.Header
	Body   []byte
}

// BackendStub is a fake content backend serving the authorize routes. Status
// and body are configurable per route; every request is recorded.
type BackendStub struct {
	*httptest.Server

	PrimaryStatus int
	PrimaryBody   []byte
	LegacyStatus  int
	LegacyBody    []byte

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewBackendStub starts a stub whose primary authorize route answers with the
// given status and body. The legacy route answers 404 until configured.
func NewBackendStub(status int, body []byte) *BackendStub {
	s := &BackendStub{
		PrimaryStatus: status,
		PrimaryBody:   body,
		LegacyStatus:  http.StatusNotFound,
		LegacyBody:    []byte(`{"code":"rest_no_route"}`),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *BackendStub) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	route := r.URL.Query().Get("rest_route")

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Route:  route,
		Header: r.Header.Clone(),
		Body:   body,
	})
	status, respBody := s.PrimaryStatus, s.PrimaryBody
	if route == "/legacy-ns/v1/authorize" {
		status, respBody = s.LegacyStatus, s.LegacyBody
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

// Requests returns a copy of the recorded requests.
func (s *BackendStub) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// TokenSetBody builds a well-formed token response body.
func TokenSetBody(accessToken string, accessExp int64, refreshToken string, refreshExp int64) []byte {
	body, err := json.Marshal(map[string]any{
		"accessToken":            accessToken,
		"accessTokenExpiration":  accessExp,
		"refreshToken":           refreshToken,
		"refreshTokenExpiration": refreshExp,
	})
	if err != nil {
		panic(err)
	}
	return body
}
