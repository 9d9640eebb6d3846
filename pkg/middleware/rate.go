// Package middleware provides the HTTP middleware stack.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/response"
)

// window is a fixed-window counter for one path and client.
type window struct {
	count   int
	resetAt time.Time
}

// limiter owns the counters of one RateLimit instance, so the global limit
// and the tighter limits on login or contact count independently.
type limiter struct {
	max    int
	period time.Duration

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

// take counts one request for key and reports whether it is allowed,
// together with the time the current window ends.
func (l *limiter) take(key string, now time.Time) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, w := range l.windows {
			if now.After(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.nextSweep = now.Add(l.period)
	}

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.max, w.resetAt
}

// RateLimit allows max requests per period for each path and client.
// Rejected requests get 429 with Retry-After.
func RateLimit(max int, period time.Duration) func(http.Handler) http.Handler {
	l := &limiter{max: max, period: period, windows: map[string]*window{}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			allowed, resetAt := l.take(r.URL.Path+"|"+clientKey(r), now)
			if !allowed {
				secs := int(resetAt.Sub(now).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				response.TooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	return r.RemoteAddr
}
