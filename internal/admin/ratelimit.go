package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// idleLimiterTTL is how long a client limiter may sit unused before it is
	// evicted.
	idleLimiterTTL  = 10 * time.Minute
	cleanupInterval = time.Minute

	// Owner listings scan every balance row of an account and get a quarter
	// of the configured rate.
	ownerListingShare = 4
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles admin requests per client IP and route class.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*clientLimiter // "class|ip"

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter starts a limiter allowing rps requests per second with the
// given burst for each client. Stop releases the cleanup goroutine.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.With("component", "admin_ratelimit"),
		now:      time.Now,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, l := range rl.limiters {
		if now.Sub(l.lastSeen) > idleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// Len reports the number of tracked client limiters.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		class := routeClass(r.URL.Path)
		if !rl.limiterFor(class, ip).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			rl.logger.Warn("admin rate limit exceeded", "path", r.URL.Path, "client_ip", ip)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeClass(path string) string {
	if strings.HasPrefix(path, "/admin/v1/owners/") {
		return "owner"
	}
	return "default"
}

func (rl *RateLimiter) limiterFor(class, ip string) *rate.Limiter {
	key := class + "|" + ip
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[key]; ok {
		l.lastSeen = now
		return l.limiter
	}

	limit, burst := rl.rps, rl.burst
	if class == "owner" {
		limit /= ownerListingShare
		burst = max(1, burst/ownerListingShare)
	}
	l := &clientLimiter{limiter: rate.NewLimiter(limit, burst), lastSeen: now}
	rl.limiters[key] = l
	return l.limiter
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
