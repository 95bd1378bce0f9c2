package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/logvault/internal/errors"
	"github.com/allisson/logvault/internal/httputil"
)

const (
	limiterIdleTTL      = time.Hour
	limiterSweepEvery   = 5 * time.Minute
	rateLimitedErrorKey = "rate_limit_exceeded"
)

// limiterKey identifies one tenant user. User ids are only unique within a
// tenant.
type limiterKey struct {
	tenantID string
	userID   string
}

type userLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// userLimiters hands out one token bucket per tenant user.
type userLimiters struct {
	mu      sync.Mutex
	buckets map[limiterKey]*userLimiter
	limit   rate.Limit
	burst   int
}

func newUserLimiters(rps float64, burst int) *userLimiters {
	return &userLimiters{
		buckets: make(map[limiterKey]*userLimiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

func (l *userLimiters) get(key limiterKey, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &userLimiter{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.Limiter
}

// sweep drops buckets unused since before cutoff and returns how many remain.
func (l *userLimiters) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, bucket := range l.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	return len(l.buckets)
}

func (l *userLimiters) sweepUntilDone(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now.Add(-limiterIdleTTL))
		}
	}
}

// RateLimitMiddleware enforces a token bucket per authenticated user and
// answers 429 with Retry-After in whole seconds. It must run after
// AuthenticationMiddleware. Idle buckets are swept until ctx is done.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, logger *slog.Logger) gin.HandlerFunc {
	limiters := newUserLimiters(rps, burst)
	go limiters.sweepUntilDone(ctx)

	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c.Request.Context())
		if !ok {
			logger.Error("rate limit middleware: no principal in context")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		now := time.Now()
		limiter := limiters.get(limiterKey{principal.TenantID, principal.UserID}, now)
		if limiter.AllowN(now, 1) {
			c.Next()
			return
		}

		reservation := limiter.ReserveN(now, 1)
		wait := reservation.DelayFrom(now)
		reservation.CancelAt(now)
		retryAfter := max(1, int(math.Ceil(wait.Seconds())))

		logger.Debug("rate limit exceeded",
			slog.String("tenant_id", principal.TenantID),
			slog.String("user_id", principal.UserID),
			slog.Int("retry_after", retryAfter))

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.ErrorResponse{
			Error:   rateLimitedErrorKey,
			Message: "Too many requests. Please retry after the specified delay.",
		})
	}
}
