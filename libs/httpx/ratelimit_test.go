package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("second request: %d", code)
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", code)
	}
	// A different client has its own window.
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other client: %d", code)
	}
}

func TestRateLimiterSetsRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}
}

func TestRateLimiterSweepsExpiredWindows(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	rl.allow("a")
	rl.allow("b")
	time.Sleep(20 * time.Millisecond)
	rl.allow("c")

	rl.mu.Lock()
	rl.sweep(time.Now())
	remaining := len(rl.clients)
	rl.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("kept %d windows after sweep, want only the live one", remaining)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	if !rl.allow("client") {
		t.Fatalf("first call denied")
	}
	if rl.allow("client") {
		t.Fatalf("second call within window allowed")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.allow("client") {
		t.Fatalf("call after window denied")
	}
}
