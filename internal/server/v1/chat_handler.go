package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openaicompat/bedrock-gateway/internal/gateway"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/usage"
	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
	"github.com/openaicompat/bedrock-gateway/internal/server/validator"
	"github.com/openaicompat/bedrock-gateway/internal/store"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

// ChatHandler serves POST /v1/chat/completions for both the unary and
// streaming (Stream: true) request shapes.
type ChatHandler struct {
	service *gateway.Service
	usage   *usage.Recorder
}

func NewChatHandler(service *gateway.Service, u *usage.Recorder) *ChatHandler {
	return &ChatHandler{service: service, usage: u}
}

// CreateCompletion binds and validates the request body, then
// dispatches to the unary or streaming path. A usage row is written on
// every exit, per the request's outcome, in both paths.
func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validator.ParseValidationError(err)
		msg := firstValidationMessage(fields)
		h.recordUsage(c, req.Model, time.Now(), 0, 0, 0, false, msg)
		_ = c.Error(gwerrors.WithParam(gwerrors.KindInvalidRequest, msg, firstValidationField(fields)))
		return
	}

	if req.Stream {
		h.handleStream(c, &req)
		return
	}
	h.handleUnary(c, &req)
}

func (h *ChatHandler) handleUnary(c *gin.Context, req *api.ChatRequest) {
	started := time.Now()
	ctx := c.Request.Context()

	resp, err := h.service.Chat(ctx, req)
	if err != nil {
		h.recordUsage(c, req.Model, started, 0, 0, 0, false, errorMessage(err))
		_ = c.Error(err)
		return
	}

	prompt, completion, total := 0, 0, 0
	if resp.Usage != nil {
		prompt, completion, total = resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens
	}
	h.recordUsage(c, req.Model, started, prompt, completion, total, true, "")

	c.JSON(http.StatusOK, resp)
}

// handleStream opens the upstream stream before writing any response
// bytes, so a pre-stream failure (bad model, translation error, upstream
// connect failure) still becomes a normal HTTP error response. Only once
// StartStream has succeeded does it commit to SSE headers and drain the
// session, at which point any further failure is reported in-band by
// Session.Run itself.
func (h *ChatHandler) handleStream(c *gin.Context, req *api.ChatRequest) {
	started := time.Now()
	ctx := c.Request.Context()

	session, err := h.service.StartStream(ctx, req)
	if err != nil {
		h.recordUsage(c, req.Model, started, 0, 0, 0, false, errorMessage(err))
		_ = c.Error(err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	var (
		usagePrompt, usageCompletion, usageTotal int
		success                                  = true
		errMsg                                   string
	)

	runErr := session.Run(func(ev api.StreamEvent) error {
		switch {
		case ev.Chunk != nil:
			if ev.Chunk.Usage != nil {
				usagePrompt, usageCompletion, usageTotal = ev.Chunk.Usage.PromptTokens, ev.Chunk.Usage.CompletionTokens, ev.Chunk.Usage.TotalTokens
			}
			return writeSSE(c.Writer, ev.Chunk)
		case ev.Err != nil:
			success, errMsg = false, ev.Err.Message
			if err := writeSSEErrorEvent(c.Writer, ev.Err); err != nil {
				return err
			}
		case ev.Done:
			_, err := io.WriteString(c.Writer, "data: [DONE]\n\n")
			c.Writer.Flush()
			return err
		}
		return nil
	})

	if runErr != nil && success {
		// The client disconnected mid-stream, or Run itself couldn't
		// write (same cause): no in-band error event reached the
		// client, but the row still records the true outcome.
		success, errMsg = false, errorMessage(runErr)
	}

	h.recordUsage(c, req.Model, started, usagePrompt, usageCompletion, usageTotal, success, errMsg)
}

func writeSSE(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func writeSSEErrorEvent(w io.Writer, body *api.ErrorBody) error {
	evt := api.ErrorEvent{Error: *body}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// recordUsage dispatches the usage write off the request path: the
// client response must not wait on it, per the deferred-write rule.
func (h *ChatHandler) recordUsage(c *gin.Context, reqModel string, started time.Time, prompt, completion, total int, success bool, errMsg string) {
	apiKey := ""
	if rec, ok := c.Request.Context().Value(store.ContextKeyAPIKey).(*model.APIKeyRecord); ok && rec != nil {
		apiKey = rec.APIKey
	}
	requestID := c.GetString("request_id")

	entry := usage.Entry{
		APIKey:           apiKey,
		RequestID:        requestID,
		Model:            reqModel,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
		Success:          success,
		ErrorMessage:     errMsg,
		StartedAt:        started,
	}
	go h.usage.Record(context.Background(), entry)
}

func errorMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "client_canceled"
	}
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return err.Error()
}

func firstValidationMessage(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return "invalid request body"
}

func firstValidationField(fields map[string]string) string {
	for field := range fields {
		return field
	}
	return ""
}
