package server

import (
	"net/http"
	"strings"

	"github.com/cms-front/cms-front/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP routing for the auth API surface plus the
// operational endpoints, wrapped in the standard middleware chain.
func NewRouter(cfg config.Config) http.Handler {
	base := strings.TrimSuffix(cfg.Frontend.BasePath(), "/")
	authHandlers := NewAuthHandlers(cfg.Backend)

	mux := http.NewServeMux()
	mux.HandleFunc(base+"/token", authHandlers.TokenHandler)
	mux.HandleFunc(base+"/logout", authHandlers.LogoutHandler)
	mux.Handle("/health", NewHealthHandler())
	mux.Handle("/metrics", promhttp.Handler())

	return ChainMiddleware(
		trimTrailingSlash(mux),
		NewLoggerMiddleware("http"),
		NewRequestIDMiddleware(),
		NewRecoverMiddleware("http"),
	)
}

// trimTrailingSlash normalizes request paths so "/api/auth/token/" and
// "/api/auth/token" dispatch identically.
func trimTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimRight(r.URL.Path, "/")
		}
		next.ServeHTTP(w, r)
	})
}
