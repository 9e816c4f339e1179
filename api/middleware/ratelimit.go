package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reader/config"
	"github.com/use-agent/reader/models"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an identity's bucket survives without traffic.
const limiterIdleTTL = time.Hour

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per identity.
type limiterStore struct {
	mu       sync.Mutex
	cfg      config.RateLimitConfig
	limiters map[string]*limiterEntry
	now      func() time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	return &limiterStore{cfg: cfg, limiters: make(map[string]*limiterEntry), now: time.Now}
}

func (s *limiterStore) get(identity string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.limiters[identity]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst),
		}
		s.limiters[identity] = entry
	}
	entry.lastSeen = s.now()
	return entry.limiter
}

// evictIdle drops buckets not used within limiterIdleTTL.
func (s *limiterStore) evictIdle() {
	cutoff := s.now().Add(-limiterIdleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
		}
	}
}

func (s *limiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate.
//
// Idle buckets are evicted every 5 minutes.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	store := newLimiterStore(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			store.evictIdle()
		}
	}()

	return rateLimit(store)
}

func rateLimit(store *limiterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString(APIKeyContextKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !store.get(identity).Allow() {
			retry := 1
			if store.cfg.RequestsPerSecond > 0 {
				retry = int(math.Ceil(1 / store.cfg.RequestsPerSecond))
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
