package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newLimited(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	rl, stop := newRateLimiter(rps, burst, discardLogger())
	t.Cleanup(stop)
	return rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	h := newLimited(t, 0.001, 3)
	for i := range 3 {
		if w := hit(h, "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: status %d, want 200", i, w.Code)
		}
	}

	w := hit(h, "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request over burst: status %d, want 429", w.Code)
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 {
		t.Errorf("Retry-After = %q, want a positive number of seconds", w.Header().Get("Retry-After"))
	}
	if got := decode[errorResponse](t, w.Body).Detail; got != "Rate limit exceeded." {
		t.Errorf("detail = %q", got)
	}
}

func TestRateLimit_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, discardLogger())
	t.Cleanup(stop)

	now := time.Unix(1_700_000_000, 0)
	if d := rl.reserve("a", now); d != 0 {
		t.Fatalf("first reserve wait = %v, want 0", d)
	}
	for range 5 {
		if d := rl.reserve("a", now); d <= 0 {
			t.Fatalf("reserve over burst wait = %v, want > 0", d)
		}
	}
	// One token refills after a second regardless of the rejected attempts.
	if d := rl.reserve("a", now.Add(time.Second)); d != 0 {
		t.Errorf("reserve after refill wait = %v, want 0", d)
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	h := newLimited(t, 0.001, 1)
	hit(h, "192.168.1.1:1111")
	if w := hit(h, "192.168.1.1:1111"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("IP A second request: status %d, want 429", w.Code)
	}
	if w := hit(h, "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("IP B: status %d, want 200", w.Code)
	}
	// Same host on another port shares the bucket.
	if w := hit(h, "192.168.1.1:3333"); w.Code != http.StatusTooManyRequests {
		t.Errorf("IP A other port: status %d, want 429", w.Code)
	}
}

func TestRateLimit_Sweep(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, discardLogger())
	t.Cleanup(stop)

	now := time.Unix(1_700_000_000, 0)
	rl.reserve("old", now)
	rl.reserve("fresh", now.Add(4*time.Minute))

	if n := rl.sweep(now.Add(6*time.Minute), limiterIdleTTL); n != 1 {
		t.Fatalf("sweep dropped %d, want 1", n)
	}
	if _, ok := rl.buckets["old"]; ok {
		t.Error("idle bucket survived sweep")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("recent bucket was dropped")
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		10 * time.Millisecond:   "1",
		1500 * time.Millisecond: "2",
		90 * time.Second:        "90",
		5 * time.Hour:           "3600",
	}
	for d, want := range cases {
		if got := retryAfter(d); got != want {
			t.Errorf("retryAfter(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: got %q, want %q", tc.remoteAddr, got, tc.wantIP)
		}
	}
}
