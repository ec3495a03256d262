package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"

	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/response"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimit limits requests per (clientIP, route) with a process-local limiter.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return RateLimitWithStore(nil, maxRequests, window)
}

// RateLimitWithStore limits requests per (clientIP, route) using store. When the store
// fails, or is nil, the process-local limiter decides instead.
func RateLimitWithStore(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	local := newMemoryRateStore()
	limit := redis_rate.Limit{Rate: maxRequests, Burst: maxRequests, Period: window}
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := rateLimitKeyPrefix + c.ClientIP() + "|" + path
		ctx := c.Request.Context()

		var (
			res *redis_rate.Result
			err error
		)
		if store != nil {
			res, err = store.Allow(ctx, key, limit)
			if err != nil {
				log.Warn("rate limit store failed, using local limiter",
					zap.String("key", key),
					zap.Error(err),
				)
			}
		}
		if res == nil {
			res, _ = local.Allow(ctx, key, limit)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(res.ResetAfter)))

		if res.Allowed == 0 {
			retry := ceilSeconds(res.RetryAfter)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
