package auth

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
)

// LimiterConfig bounds credential attempts per client address.
type LimiterConfig struct {
	PerMinute int
	Burst     int
	// Idle limiters are dropped by Sweep after this long.
	Idle time.Duration
}

// LimiterConfigFromEnv reads LOGIN_RATE_PER_MINUTE and LOGIN_RATE_BURST.
// A zero rate disables limiting.
func LimiterConfigFromEnv() LimiterConfig {
	cfg := LimiterConfig{PerMinute: 10, Burst: 5, Idle: 15 * time.Minute}
	if v, err := strconv.Atoi(os.Getenv("LOGIN_RATE_PER_MINUTE")); err == nil && v >= 0 {
		cfg.PerMinute = v
	}
	if v, err := strconv.Atoi(os.Getenv("LOGIN_RATE_BURST")); err == nil && v > 0 {
		cfg.Burst = v
	}
	return cfg
}

// LoginLimiter throttles credential endpoints per client address.
type LoginLimiter struct {
	cfg   LimiterConfig
	clock clockwork.Clock

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

func NewLoginLimiter(cfg LimiterConfig, clock clockwork.Clock) *LoginLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LoginLimiter{
		cfg:      cfg,
		clock:    clock,
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

// Allow consumes one attempt for key.
func (l *LoginLimiter) Allow(key string) bool {
	if l.cfg.PerMinute == 0 {
		return true
	}
	now := l.clock.Now()
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.cfg.PerMinute)), l.cfg.Burst)
		l.limiters[key] = lim
	}
	l.lastSeen[key] = now
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than the configured window.
func (l *LoginLimiter) Sweep() int {
	cutoff := l.clock.Now().Add(-l.cfg.Idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.lastSeen, k)
			delete(l.limiters, k)
			n++
		}
	}
	return n
}

// Middleware rejects requests over the limit with 429.
func (l *LoginLimiter) Middleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientAddr(r)
			if !l.Allow(key) {
				logger.Warnw("login throttled", "remote", key)
				w.Header().Set("Retry-After", "60")
				httpx.WriteJSON(w, http.StatusTooManyRequests, httpx.ErrorBody{
					Error:   "rate_limited",
					Message: "too many attempts, try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
