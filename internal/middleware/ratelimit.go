package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for idle client eviction.
const (
	DefaultCleanupInterval = time.Minute
	DefaultClientIdle      = 3 * time.Minute
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	now     func() time.Time
}

// NewRateLimiter allows rps requests per second per client with the given
// burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		r:       r,
		burst:   burst,
		now:     time.Now,
	}
}

// Run evicts clients idle for longer than idle until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if idle <= 0 {
		idle = DefaultClientIdle
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.evict(idle)
		}
	}
}

func (rl *RateLimiter) evict(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	cutoff := rl.now().Add(-idle)
	for key, c := range rl.clients {
		if c.seen.Before(cutoff) {
			delete(rl.clients, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// reserve takes a token for key. It returns zero when the request may
// proceed, otherwise how long the client should wait.
func (rl *RateLimiter) reserve(key string) time.Duration {
	now := rl.now()

	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{lim: rate.NewLimiter(rl.r, rl.burst)}
		rl.clients[key] = c
	}
	c.seen = now
	lim := c.lim
	rl.mu.Unlock()

	if lim.AllowN(now, 1) {
		return 0
	}
	wait := time.Second
	if rl.r > 0 {
		wait = time.Duration(float64(time.Second) / float64(rl.r))
	}
	return wait
}

// RateLimit rejects requests over the per-client budget with 429 and a
// Retry-After header. Clients are keyed by RemoteAddr without its port,
// so it belongs after chi's RealIP middleware.
func RateLimit(rl *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			wait := rl.reserve(ip)
			if wait == 0 {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(wait.Seconds()))
			logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("ip", ip),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Int("retry_after_seconds", retry),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
