package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_front_token_exchanges_total",
		Help: "Total number of token exchange attempts against the content backend",
	}, []string{"outcome"})

	TokenExchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cms_front_token_exchange_duration_seconds",
		Help:    "Time spent exchanging codes or refresh tokens for token sets",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 10), // 10ms to ~5s
	})

	LegacyFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_front_legacy_fallbacks_total",
		Help: "Total number of exchanges retried against the deprecated authorize endpoint",
	})

	Logouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_front_logouts_total",
		Help: "Total number of logout requests that cleared the refresh token cookie",
	})

	RefreshTimerFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_front_refresh_timer_fires_total",
		Help: "Total number of access token refreshes triggered by the refresh timer",
	})
)

// Exchange outcomes
const (
	OutcomeSuccess      = "success"
	OutcomeUnauthorized = "unauthorized"
	OutcomeTransport    = "transport_error"
)
