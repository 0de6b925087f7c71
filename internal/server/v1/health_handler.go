package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openaicompat/bedrock-gateway/internal/gateway/resolver"
	"github.com/openaicompat/bedrock-gateway/internal/store"
)

// HealthHandler serves GET /health: a liveness probe with no
// dependency checks, always 200 once the process is up.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadyHandler serves GET /ready: a readiness probe that checks the
// KeyStore is reachable and the model resolver has a non-empty known
// id set, so a load balancer doesn't route traffic to an instance that
// can't yet authenticate or resolve models.
type ReadyHandler struct {
	store    store.KeyStore
	resolver *resolver.Resolver
}

func NewReadyHandler(s store.KeyStore, r *resolver.Resolver) *ReadyHandler {
	return &ReadyHandler{store: s, resolver: r}
}

func (h *ReadyHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "store_unreachable"})
		return
	}
	if len(h.resolver.ListKnownIDs(ctx)) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "no_model_mapping"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
