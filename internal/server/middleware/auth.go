package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/openaicompat/bedrock-gateway/internal/config"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/authn"
	"github.com/openaicompat/bedrock-gateway/internal/store"
)

// Auth runs the Authenticator against every request, storing the
// resolved APIKeyRecord on the request context for downstream
// middleware (rate limiting) and handlers to read via
// store.ContextKeyAPIKey. When cfg.RequireAPIKey is false, credential
// validation is skipped entirely and every request is treated as
// authn.AnonymousRecord, matching the original's require_api_key bypass.
func Auth(a *authn.Authenticator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RequireAPIKey {
			ctx := context.WithValue(c.Request.Context(), store.ContextKeyAPIKey, authn.AnonymousRecord())
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		rec, err := a.Authenticate(c.Request.Context(), c.Request.Header)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), store.ContextKeyAPIKey, rec)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
