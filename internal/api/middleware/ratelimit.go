package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/boosterlab/packdrop/internal/adapter"
	apierrors "github.com/boosterlab/packdrop/internal/api/shared/errors"
)

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter enforces a fixed-window per-user request budget. Windows
// live in a TTL cache so idle users cost nothing; state is process-local.
type RateLimiter struct {
	clock  adapter.Clock
	max    int
	window time.Duration

	mu      sync.Mutex
	windows *expirable.LRU[string, *rateWindow]
}

// NewRateLimiter creates a limiter allowing max requests per window per user
func NewRateLimiter(clock adapter.Clock, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clock:   clock,
		max:     max,
		window:  window,
		windows: expirable.NewLRU[string, *rateWindow](0, nil, window),
	}
}

// Allow records one request for the user and reports whether it fits the
// current window, along with the moment the window resets.
func (l *RateLimiter) Allow(userID string) (bool, time.Time) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows.Get(userID)
	if !ok || now.Sub(w.start) >= l.window {
		w = &rateWindow{start: now}
		l.windows.Add(userID, w)
	}

	resetAt := w.start.Add(l.window)
	if w.count >= l.max {
		return false, resetAt
	}
	w.count++
	return true, resetAt
}

// rateLimitedResponse is the 429 body: the standard error shape plus the
// window reset time.
type rateLimitedResponse struct {
	apierrors.APIError
	ResetAt time.Time `json:"resetAt"`
}

// RateLimit returns a gin middleware applying the per-user limit. It must
// run after Auth; unauthenticated requests pass through untouched.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}

		allowed, resetAt := limiter.Allow(userID)
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitedResponse{
				APIError: *apierrors.NewRateLimitedError("Rate limit exceeded"),
				ResetAt:  resetAt,
			})
			return
		}

		c.Next()
	}
}
