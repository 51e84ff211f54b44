package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/ratelimit"
	"github.com/tubekit/tubekit-server/internal/subject"
)

// RateLimit enforces the per-client fixed window for route. Requests are keyed
// by client IP for anonymous callers and by user id for signed-in callers.
// Limiter failures let the request through.
func RateLimit(manager *ratelimit.Manager, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := ratelimit.ClientIP(c.Request)
		userID := ""
		if subj, ok := subject.FromContext(c); ok {
			userID = subj.UserID
			if subj.ClientIP != "" {
				clientIP = subj.ClientIP
			}
		}

		policy := ratelimit.ResolvePolicy(manager.Settings(), userID != "")
		key := ratelimit.KeyFor(policy, clientIP, userID, route)
		if key == "" {
			c.Next()
			return
		}

		result, errAllow := manager.Allow(c.Request.Context(), key, policy)
		if errAllow != nil {
			log.WithError(errAllow).WithField("route", route).Warn("rate limit check failed")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := result.RetryAfter(manager.Now())
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"reason":      "rate_limited",
				"retry_after": int(retryAfter.Seconds()),
			})
			return
		}
		c.Next()
	}
}
