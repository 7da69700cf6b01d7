package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/pharmabot/internal/logging"
)

// Token bucket applied per client IP on POST /chat when none is configured.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Buckets idle for limiterIdleTTL are dropped on the next sweep.
const (
	limiterIdleTTL    = 5 * time.Minute
	limiterSweepEvery = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles requests per client IP.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int
	log   *slog.Logger
}

// newRateLimiter returns a limiter allowing rps sustained requests per second
// and burst at once for each client IP, plus the function that stops its
// background sweeper.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				if n := rl.sweep(now, limiterIdleTTL); n > 0 {
					rl.log.Debug("rate limiter: dropped idle clients", slog.Int("count", n))
				}
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// reserve takes a token for ip at now. It returns zero when the request may
// proceed, otherwise how long the client should wait.
func (rl *rateLimiter) reserve(ip string, now time.Time) time.Duration {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

// sweep drops buckets not used within idle of now and reports how many.
func (rl *rateLimiter) sweep(now time.Time, idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	dropped := 0
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, ip)
			dropped++
		}
	}
	return dropped
}

// middleware rejects requests over the limit with 429 and a Retry-After
// header in whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.reserve(ip, time.Now())
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", retryAfter(wait))
		writeError(r.Context(), w, http.StatusTooManyRequests, "Rate limit exceeded.")
	})
}

// retryAfter renders d as a Retry-After value, never less than one second
// and capped at an hour.
func retryAfter(d time.Duration) string {
	secs := math.Ceil(d.Seconds())
	secs = math.Max(1, math.Min(secs, 3600))
	return strconv.Itoa(int(secs))
}

// clientIP is the host part of RemoteAddr. Forwarding headers are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
