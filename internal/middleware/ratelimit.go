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

	"github.com/Strob0t/eventcast/internal/logger"
)

// ConnectLimiter throttles new stream connections per client IP with a
// token bucket. Established streams are not affected.
type ConnectLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       float64 // tokens per second
	burst      float64
	maxBuckets int
	now        func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewConnectLimiter allows rate connects per second per IP with the given burst.
func NewConnectLimiter(rate float64, burst int) *ConnectLimiter {
	return &ConnectLimiter{
		buckets:    make(map[string]*bucket),
		rate:       rate,
		burst:      float64(burst),
		maxBuckets: 100000,
		now:        time.Now,
	}
}

// Handler rejects over-limit connects with 429 and a Retry-After header.
func (l *ConnectLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wait, ok := l.allow(clientIP(r))
		if !ok {
			slog.Info("stream connect throttled", append(logger.Attrs(r.Context()), "remote", clientIP(r))...)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeStatus(w, http.StatusTooManyRequests, "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow takes one token for ip. When none is left it returns how long until
// the next one.
func (l *ConnectLimiter) allow(ip string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= l.maxBuckets {
			return time.Duration(float64(time.Second) / l.rate), false
		}
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[ip] = b
	}

	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	b.seen = now

	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / l.rate * float64(time.Second)), false
	}
	b.tokens--
	return 0, true
}

// RunCleanup forgets buckets idle for longer than maxIdle, every interval,
// until ctx is done.
func (l *ConnectLimiter) RunCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup(maxIdle)
		}
	}
}

func (l *ConnectLimiter) cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	for ip, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// Len returns the number of tracked IPs.
func (l *ConnectLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// clientIP uses RemoteAddr only. Proxy headers are spoofable; deployments
// behind a proxy put chi's RealIP in front.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
