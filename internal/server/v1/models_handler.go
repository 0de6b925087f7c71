package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openaicompat/bedrock-gateway/internal/gateway"
	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

// ModelsHandler serves GET /v1/models, the OpenAI model-listing shape
// over the resolver's known client-facing model ids.
type ModelsHandler struct {
	service *gateway.Service
	created int64
}

func NewModelsHandler(service *gateway.Service) *ModelsHandler {
	return &ModelsHandler{service: service, created: time.Now().Unix()}
}

func (h *ModelsHandler) ListModels(c *gin.Context) {
	ids := h.service.ListModelIDs(c.Request.Context())

	data := make([]api.ModelListItem, 0, len(ids))
	for _, id := range ids {
		data = append(data, api.ModelListItem{
			ID:      id,
			Object:  "model",
			Created: h.created,
			OwnedBy: "anthropic",
		})
	}

	c.JSON(http.StatusOK, api.ModelsListResponse{Object: "list", Data: data})
}
