package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// LoginRateLimitConfig returns the default limit for credential endpoints
func LoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// Limiter counts requests per key
type Limiter interface {
	// Allow records one request for key and reports whether it fits
	Allow(ctx context.Context, key string) (bool, error)
	// Remaining returns how many requests key has left in the window
	Remaining(ctx context.Context, key string) (int, error)
	// TTL returns the time until key's window resets
	TTL(ctx context.Context, key string) (time.Duration, error)
	Config() *RateLimitConfig
}

// RateLimiter is a fixed-window Limiter held in process memory
type RateLimiter struct {
	config  *RateLimitConfig
	windows map[string]*window
	mu      sync.Mutex
	now     func() time.Time
}

type window struct {
	count int
	start time.Time
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

var _ Limiter = (*RateLimiter)(nil)

// current returns key's live window. Caller holds the lock.
func (rl *RateLimiter) current(key string) *window {
	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.config.WindowDuration {
		w = &window{start: now}
		rl.windows[key] = w
	}
	return w
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.current(key)
	w.count++
	return w.count <= rl.config.RequestsPerWindow, nil
}

func (rl *RateLimiter) Remaining(_ context.Context, key string) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	remaining := rl.config.RequestsPerWindow - rl.current(key).count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (rl *RateLimiter) TTL(_ context.Context, key string) (time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.current(key)
	return rl.config.WindowDuration - rl.now().Sub(w.start), nil
}

func (rl *RateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// Cleanup removes expired windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.config.WindowDuration {
			delete(rl.windows, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	limiter  Limiter
	logger   *observability.Logger
	proxies  *auth.TrustedProxies
	failOpen bool
	now      func() time.Time
}

// NewRateLimitMiddleware creates a new rate limit middleware. Limiter
// errors let the request through unless SetFailOpen(false) is called.
func NewRateLimitMiddleware(limiter Limiter, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:  limiter,
		logger:   logger,
		failOpen: true,
		now:      time.Now,
	}
}

// SetFailOpen controls whether to fail open (true) or closed (false) on
// limiter errors
func (m *RateLimitMiddleware) SetFailOpen(enabled bool) {
	m.failOpen = enabled
}

// SetTrustedProxies sets the proxies whose forwarding headers identify the
// client. Without any, requests are keyed on their remote address.
func (m *RateLimitMiddleware) SetTrustedProxies(proxies *auth.TrustedProxies) {
	m.proxies = proxies
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "ip:" + m.proxies.ClientIP(r)
		limit := m.limiter.Config().RequestsPerWindow

		allowed, err := m.limiter.Allow(ctx, key)
		if err != nil {
			m.logger.WithError(err).Warn("rate limiter unavailable")
			if m.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))

		ttl, err := m.limiter.TTL(ctx, key)
		if err != nil || ttl <= 0 {
			ttl = m.limiter.Config().WindowDuration
		}
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(m.now().Add(ttl).Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		if remaining, err := m.limiter.Remaining(ctx, key); err == nil {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		next.ServeHTTP(w, r)
	})
}
