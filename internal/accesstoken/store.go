// Package accesstoken caches the short-lived access token in process memory
// and owns the one-shot timer that refreshes it before expiry. The store is an
// explicitly owned session object created once per client runtime; it is never
// a package-level singleton, and a server-side store never caches tokens since
// a server process interleaves unrelated visitors' requests.
package accesstoken

import (
	"sync"
	"time"

	"github.com/cms-front/cms-front/internal/log"
	"github.com/cms-front/cms-front/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// RefreshMargin is how long before expiration the refresh fires. A token
// expiring in 300s is refreshed at 240s, leaving time to fetch a replacement
// before the current one lapses.
const RefreshMargin = 60 * time.Second

// Side is the execution context a store was created for.
type Side int

const (
	// ClientSide stores belong to a single visitor's runtime and may cache.
	ClientSide Side = iota
	// ServerSide stores never cache: Set is a no-op.
	ServerSide
)

// Token is an access token with its epoch-seconds expiration.
type Token struct {
	Token      string
	Expiration int64
}

// RefreshFunc re-invokes the token exchange using the stored refresh token.
// On success it is expected to Set the new token and re-arm the timer; on
// failure to Clear the store.
type RefreshFunc func()

// Store holds at most one live access token and at most one armed refresh
// timer. Arming replaces any prior timer; a fired timer clears itself.
type Store struct {
	mu      sync.Mutex
	side    Side
	clock   clockwork.Clock
	token   *Token
	timer   clockwork.Timer
	refresh RefreshFunc
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the wall clock, letting tests advance virtual time.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore creates a store for the given execution side.
func NewStore(side Side, opts ...Option) *Store {
	s := &Store{
		side:  side,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRefreshFunc installs the refresh callback invoked when the timer fires.
func (s *Store) SetRefreshFunc(fn RefreshFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = fn
}

// Get returns the cached access token if one exists.
func (s *Store) Get() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return Token{}, false
	}
	return *s.token, true
}

// Set caches an access token and its expiration. No-op on server-side stores:
// caching there would leak one visitor's token into another's request.
func (s *Store) Set(token string, expiration int64) {
	if s.side == ServerSide {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &Token{Token: token, Expiration: expiration}
}

// Clear drops the cached token.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
}

// ArmRefreshTimer schedules a one-shot refresh at expiration minus
// RefreshMargin, replacing any previously armed timer. Without a cached
// expiration it does nothing. A token at or past the refresh point triggers an
// immediate refresh rather than failing.
func (s *Store) ArmRefreshTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}

	untilExpiration := time.Duration(s.token.Expiration-s.clock.Now().Unix()) * time.Second
	delay := untilExpiration - RefreshMargin
	if delay < 0 {
		delay = 0
	}

	log.LogDebugWithFields("accesstoken", "Refresh timer armed", map[string]any{
		"delay": delay.String(),
	})

	s.timer = s.clock.AfterFunc(delay, s.fireRefresh)
}

// ClearRefreshTimer cancels an armed timer if one exists.
func (s *Store) ClearRefreshTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) fireRefresh() {
	s.mu.Lock()
	// The timer is one-shot: it clears itself on fire and is only re-armed
	// by a successful refresh.
	s.timer = nil
	refresh := s.refresh
	s.mu.Unlock()

	metrics.RefreshTimerFires.Inc()
	if refresh != nil {
		refresh()
	}
}
