package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
)

// ErrorHandler drains c.Errors after the handler chain runs, mapping a
// *gwerrors.Error to its canonical status and OpenAI-shaped body and
// falling back to a generic internal_error for anything else.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		if gwErr, ok := err.(*gwerrors.Error); ok {
			if gwErr.Log != nil {
				logger.Error("request failed", zap.String("kind", string(gwErr.Kind)), zap.Error(gwErr.Log))
			}
			c.JSON(gwErr.Status(), gwErr.Body())
			c.Abort()
			return
		}

		logger.Error("unhandled request error", zap.Error(err))
		fallback := gwerrors.Internal("an unexpected error occurred", err)
		c.JSON(http.StatusInternalServerError, fallback.Body())
		c.Abort()
	}
}
