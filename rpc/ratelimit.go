package rpc

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit bounds per-client request rates on the status API routes.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

var defaultRateLimit = RateLimit{RequestsPerMinute: 600, Burst: 120}

type clientLimiter struct {
	cfg      RateLimit
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newClientLimiter(cfg RateLimit) *clientLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRateLimit.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &clientLimiter{cfg: cfg, visitors: make(map[string]*rate.Limiter)}
}

func (l *clientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiterFor(clientID(r)).Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *clientLimiter) limiterFor(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60.0), l.cfg.Burst)
		l.visitors[id] = limiter
	}
	return limiter
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
