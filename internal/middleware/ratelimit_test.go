package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func connectFrom(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/stream", http.NoBody)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestLimiter(rate float64, burst int, now *time.Time) *ConnectLimiter {
	l := NewConnectLimiter(rate, burst)
	l.now = func() time.Time { return *now }
	return l
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestConnectLimiter_BurstThenReject(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, 3, &now)
	h := l.Handler(okHandler())

	for i := 0; i < 3; i++ {
		if rec := connectFrom(h, "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("connect %d: status %d", i+1, rec.Code)
		}
	}

	rec := connectFrom(h, "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}
	if rec.Body.String() != `{"status":"rate_limited"}` {
		t.Errorf("body = %s", rec.Body.String())
	}

	if rec := connectFrom(h, "10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("other IP should not be limited, got %d", rec.Code)
	}
}

func TestConnectLimiter_Refills(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(2, 1, &now)
	h := l.Handler(okHandler())

	connectFrom(h, "10.0.0.1")
	if rec := connectFrom(h, "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	now = now.Add(500 * time.Millisecond)
	if rec := connectFrom(h, "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("expected refill after 500ms, got %d", rec.Code)
	}
}

func TestConnectLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, 1, &now)
	h := l.Handler(okHandler())

	connectFrom(h, "10.0.0.1")
	connectFrom(h, "10.0.0.2")
	if l.Len() != 2 {
		t.Fatalf("tracked %d IPs, want 2", l.Len())
	}

	now = now.Add(time.Hour)
	l.cleanup(time.Minute)
	if l.Len() != 0 {
		t.Fatalf("tracked %d IPs after cleanup, want 0", l.Len())
	}
}
