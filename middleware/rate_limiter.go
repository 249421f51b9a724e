package middleware

import (
	"net/http"
	"sync"
	"time"

	"unmute/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterStore holds one limiter per caller key.
type rateLimiterStore struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	perMin   int
	burst    int
}

func newRateLimiterStore(perMin, burst int) *rateLimiterStore {
	return &rateLimiterStore{limiters: make(map[string]*rate.Limiter), perMin: perMin, burst: burst}
}

// getLimiter returns the limiter for key, creating one if it doesn't exist.
func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

// RateLimitMiddleware allows perMin requests a minute per authenticated user,
// falling back to the client IP. A non-positive perMin disables limiting.
func RateLimitMiddleware(perMin int, logger *zap.Logger) gin.HandlerFunc {
	if perMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := perMin / 6
	if burst < 1 {
		burst = 1
	}
	store := newRateLimiterStore(perMin, burst)

	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = "ip:" + getClientIP(c)
		}
		if !store.getLimiter(key).Allow() {
			logger.Warn("Rate limit exceeded", zap.String("key", key))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse{Message: "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}
