package relay

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"
)

func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

			if strings.ToUpper(r.Method) == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ipLimiter hands out one token bucket per client IP. Buckets idle for longer
// than ttl are dropped on the next sweep.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	buckets  map[string]*bucket
	lastScan time.Time
	now      func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastScan) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastScan = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *ipLimiter) retryAfter() int {
	if l.limit <= 0 {
		return 1
	}
	secs := int(math.Ceil(1 / float64(l.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// seekAllowance scales the bucket used for seek requests. An <audio> element sends
// a ranged request each time the user scrubs.
const seekAllowance = 5

// isSeek reports whether r asks for a byte range that does not start at 0.
func isSeek(r *http.Request) bool {
	rng := strings.TrimSpace(r.Header.Get("Range"))
	if rng == "" {
		return false
	}
	return !strings.HasPrefix(rng, "bytes=0-")
}

// rateLimitMiddleware charges seeks to the seek limiter and everything else to
// play. A nil limiter lets its requests through (AUDIO_RPS=0).
func rateLimitMiddleware(play, seek *ipLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if play == nil && seek == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := play
			if isSeek(r) {
				l = seek
			}
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			if !l.allow(ip) {
				hlog.FromRequest(r).Warn().Str("ip", ip).Bool("seek", l == seek).Msg("audio rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				writeRelayError(w, newError(RateLimited, "too many requests", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
