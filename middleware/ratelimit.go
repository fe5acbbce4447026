package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
	Message   string
}

// fixed window counter; the first hit in a window sets its expiry
var rateLimitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RateLimit limits requests per client IP. OPTIONS requests are exempt and
// Redis failures let the request through.
func RateLimit(rdb *redis.Client, cfg RateLimitConfig, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := cfg.KeyPrefix + c.ClientIP()
		res, err := rateLimitScript.Run(c.Request.Context(), rdb, []string{key}, cfg.Window.Milliseconds()).Int64Slice()
		if err != nil || len(res) != 2 {
			log.WithError(err).Warn("RateLimit: redis unavailable, allowing request")
			c.Next()
			return
		}

		count, ttlMs := res[0], res[1]
		remaining := int64(cfg.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(cfg.Limit) {
			retryAfter := ttlMs / 1000
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": cfg.Message})
			return
		}
		c.Next()
	}
}
