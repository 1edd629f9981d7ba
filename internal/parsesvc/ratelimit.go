package parsesvc

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWindow is the fixed-window rate limit span.
	DefaultWindow = 60 * time.Second

	// DefaultMaxRequests is the per-client request cap within a window.
	DefaultMaxRequests = 50
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

type windowEntry struct {
	count int
	reset time.Time
}

// RateLimiter enforces a fixed-window per-client request cap. Windows expire
// lazily on the next request from the same client; there is no sweeper.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*windowEntry
	limit      int
	window     time.Duration
	enabled    bool
	timeSource TimeSource
}

// NewRateLimiter creates a limiter with the real clock. limit <= 0 or
// window <= 0 fall back to the defaults.
func NewRateLimiter(limit int, window time.Duration, enabled bool) *RateLimiter {
	return NewRateLimiterWithTime(limit, window, enabled, &defaultTimeSource{})
}

// NewRateLimiterWithTime creates a limiter with a custom time source for testing
func NewRateLimiterWithTime(limit int, window time.Duration, enabled bool, timeSrc TimeSource) *RateLimiter {
	if limit <= 0 {
		limit = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{
		entries:    make(map[string]*windowEntry),
		limit:      limit,
		window:     window,
		enabled:    enabled,
		timeSource: timeSrc,
	}
}

// Enabled reports whether the limiter is active
func (rl *RateLimiter) Enabled() bool {
	return rl.enabled
}

// Allow records a request for the client and reports whether it is within the
// limit. When denied, the second return value is how long until the window
// resets.
func (rl *RateLimiter) Allow(clientID string) (bool, time.Duration) {
	if !rl.enabled {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.timeSource.Now()
	entry, ok := rl.entries[clientID]
	if !ok || now.After(entry.reset) || now.Equal(entry.reset) {
		rl.entries[clientID] = &windowEntry{count: 1, reset: now.Add(rl.window)}
		return true, 0
	}

	if entry.count >= rl.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	return true, 0
}

// ClientID derives a stable identifier for the request. Authenticated clients
// are keyed by a hash of their bearer token so the token itself never appears
// in logs or limiter state; anonymous clients fall back to forwarded IPs.
func ClientID(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		if token != "" {
			sum := sha256.Sum256([]byte(token))
			return hex.EncodeToString(sum[:])[:16]
		}
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the original client
		if idx := strings.Index(forwarded, ","); idx != -1 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	return "anonymous"
}
