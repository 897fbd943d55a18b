package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/indieinfra/plume/server/auth"
	"github.com/indieinfra/plume/server/resp"
)

const limiterIdle = 5 * time.Minute

type userLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter hands out one token bucket per authenticated user.
type RateLimiter struct {
	every time.Duration
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[int64]*userLimiter
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		every:    time.Minute / time.Duration(max(perMinute, 1)),
		burst:    max(perMinute/2, 1),
		now:      time.Now,
		limiters: make(map[int64]*userLimiter),
	}
}

// Allow consumes one token from userID's bucket.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for id, l := range rl.limiters {
		if now.After(l.expires) {
			delete(rl.limiters, id)
		}
	}

	l, ok := rl.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(rate.Every(rl.every), rl.burst)}
		rl.limiters[userID] = l
	}
	l.expires = now.Add(limiterIdle)

	return l.limiter.AllowN(now, 1)
}

// RateLimitMiddleware throttles submissions per user. It must run after
// ValidateTokenMiddleware; a perMinute of zero disables it.
func RateLimitMiddleware(perMinute int, next http.Handler) http.Handler {
	if perMinute <= 0 {
		return next
	}

	rl := NewRateLimiter(perMinute)
	return rl.Wrap(next)
}

func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			resp.WriteUnauthorized(w, "An access token is required")
			return
		}

		if !rl.Allow(user.ID) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.every.Seconds())+1))
			resp.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
