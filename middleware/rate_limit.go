package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/utils"
)

const limiterIdle = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newLimiterSet(perMinute int, now func() time.Time) *limiterSet {
	perMinute = max(perMinute, 1)
	return &limiterSet{
		limiters: make(map[string]*rateLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		now:      now,
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, l := range s.limiters {
		if now.After(l.expires) {
			delete(s.limiters, k)
		}
	}
	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(limiterIdle)
	return l.limiter.AllowN(now, 1)
}

// RateLimit applies a per client IP token bucket of perMinute requests.
// perMinute <= 0 disables the limiter.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	set := newLimiterSet(perMinute, time.Now)

	return func(ctx *gin.Context) {
		if !set.allow(ctx.ClientIP()) {
			utils.Fail(ctx, apperr.RateLimited("rate limit exceeded"))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
