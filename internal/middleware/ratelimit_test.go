package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citafacil/citafacil/internal/testutil"
)

func TestRateLimit_PerClient(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	h := RateLimit(rl, testutil.DiscardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/elaborate", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("10.0.0.1:1111"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	rec := do("10.0.0.1:2222")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}

	if rec := do("10.0.0.2:1111"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}

	now = now.Add(time.Second)
	if rec := do("10.0.0.1:1111"); rec.Code != http.StatusOK {
		t.Errorf("status after refill = %d, want 200", rec.Code)
	}

	if rl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rl.Len())
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if wait := rl.reserve("10.0.0.1"); wait != 0 {
			t.Fatalf("request %d throttled with rate disabled", i)
		}
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, 5)
	rl.now = func() time.Time { return now }

	rl.reserve("10.0.0.1")
	now = now.Add(2 * time.Minute)
	rl.reserve("10.0.0.2")
	now = now.Add(2 * time.Minute)

	if n := rl.evict(3 * time.Minute); n != 1 {
		t.Errorf("evict() = %d, want 1", n)
	}
	if rl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rl.Len())
	}
}
