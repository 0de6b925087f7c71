package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openaicompat/bedrock-gateway/internal/config"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/authn"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/ratelimit"
	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
	"github.com/openaicompat/bedrock-gateway/internal/store"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

// RateLimit admits requests against the per-api_key token bucket,
// reading the APIKeyRecord a prior Auth call placed on the request
// context. Register it after Auth. Master-key records and a disabled
// rate_limit_enabled config both bypass admission entirely. On
// admission it sets the three observable rate-limit headers regardless
// of outcome.
func RateLimit(limiter *ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RateLimitEnabled {
			c.Next()
			return
		}

		rec, _ := c.Request.Context().Value(store.ContextKeyAPIKey).(*model.APIKeyRecord)
		if rec == nil || authn.IsMaster(rec) {
			c.Next()
			return
		}

		capacity := rec.RateLimit
		if capacity <= 0 {
			capacity = cfg.RateLimitRequests
		}

		decision := limiter.Admit(rec.APIKey, capacity, cfg.RateLimitWindowDuration().Seconds())

		c.Header("X-RateLimit-Limit", strconv.Itoa(capacity))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetEpoch, 10))

		if !decision.Allowed {
			_ = c.Error(gwerrors.RateLimit("rate limit exceeded for this API key"))
			c.Abort()
			return
		}

		c.Next()
	}
}
