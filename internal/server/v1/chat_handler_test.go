package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/gateway"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/media"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/resolver"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/translate"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/upstream"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/usage"
	"github.com/openaicompat/bedrock-gateway/internal/server/middleware"
	v1 "github.com/openaicompat/bedrock-gateway/internal/server/v1"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

type fakeMappingStore struct{}

func (fakeMappingStore) Get(ctx context.Context, id string) (string, error) { return "", errors.New("not used") }
func (fakeMappingStore) Put(ctx context.Context, id, upstreamID string) error { return nil }
func (fakeMappingStore) List(ctx context.Context) ([]model.ModelMappingRow, error) {
	return nil, nil
}

type fakeBedrockAPI struct {
	converseFn       func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	converseStreamFn func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamOutput, error)
}

func (f *fakeBedrockAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return f.converseFn(ctx, params)
}

func (f *fakeBedrockAPI) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	if f.converseStreamFn != nil {
		return f.converseStreamFn(ctx, params)
	}
	return nil, errors.New("not used in this test")
}

// fakeUsageRepo records every Put call, with a buffered done channel a
// test can use to synchronize against the handler's now-detached usage write.
type fakeUsageRepo struct {
	mu   sync.Mutex
	rows []*model.UsageRow
	done chan struct{}
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{done: make(chan struct{}, 8)}
}

func (r *fakeUsageRepo) Put(ctx context.Context, row *model.UsageRow) error {
	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *fakeUsageRepo) GetByRequestID(ctx context.Context, requestID string) (*model.UsageRow, error) {
	return nil, errors.New("not used")
}

func (r *fakeUsageRepo) waitForWrite(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for usage row to be recorded")
	}
}

func newTestService(brt *fakeBedrockAPI) *gateway.Service {
	res := resolver.New(fakeMappingStore{}, time.Hour)
	reqTr := translate.NewRequestTranslator(media.New(), true, true, true)
	respTr := translate.NewResponseTranslator(func() int64 { return 1_700_000_000 })
	up := upstream.NewFromClient(brt, upstream.WithRetryBaseDelay(time.Millisecond))
	return gateway.New(res, reqTr, respTr, up)
}

// setupChatRouter mirrors the teacher's setupRouter helper: a bare gin
// engine with only the route and error-mapping middleware under test
// registered, bypassing auth and rate limiting entirely.
func setupChatRouter(svc *gateway.Service, usageRepo *fakeUsageRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.ErrorHandler(zap.NewNop()))

	rec := usage.New(usageRepo, zap.NewNop())
	handler := v1.NewChatHandler(svc, rec)
	engine.POST("/v1/chat/completions", handler.CreateCompletion)
	return engine
}

func TestHandleChatCompletions_UnarySuccess(t *testing.T) {
	brt := &fakeBedrockAPI{converseFn: func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
		input, output := int32(3), int32(2)
		return &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "hi there"}},
			}},
			StopReason: types.StopReasonEndTurn,
			Usage:      &types.TokenUsage{InputTokens: &input, OutputTokens: &output},
		}, nil
	}}
	usageRepo := newFakeUsageRepo()
	engine := setupChatRouter(newTestService(brt), usageRepo)

	body, _ := json.Marshal(api.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hi there", *resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)

	usageRepo.waitForWrite(t)
	usageRepo.mu.Lock()
	require.Len(t, usageRepo.rows, 1)
	assert.True(t, usageRepo.rows[0].Success)
	assert.Equal(t, 5, usageRepo.rows[0].TotalTokens)
	usageRepo.mu.Unlock()
}

func TestHandleChatCompletions_InvalidBody(t *testing.T) {
	engine := setupChatRouter(newTestService(&fakeBedrockAPI{}), newFakeUsageRepo())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages": []}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request_error")
}

func TestHandleChatCompletions_UpstreamFailureMapsToHTTPError(t *testing.T) {
	brt := &fakeBedrockAPI{converseFn: func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
		return nil, errors.New("connect refused")
	}}
	usageRepo := newFakeUsageRepo()
	engine := setupChatRouter(newTestService(brt), usageRepo)

	body, _ := json.Marshal(api.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	usageRepo.waitForWrite(t)
	usageRepo.mu.Lock()
	require.Len(t, usageRepo.rows, 1)
	assert.False(t, usageRepo.rows[0].Success)
	usageRepo.mu.Unlock()
}

// The full SSE drain path (translator event handling, chunk framing,
// [DONE] terminator) is exercised at the service level in
// gateway.TestRun_EmitsChunksThenDone against a fake event stream;
// constructing a real *bedrockruntime.ConverseStreamOutput here would
// require reaching into unexported SDK internals. What the handler
// itself is responsible for -- turning a StartStream failure into a
// normal HTTP error before any SSE bytes are written -- is covered
// below.
func TestHandleChatCompletions_StreamPreStartFailureMapsToHTTPError(t *testing.T) {
	brt := &fakeBedrockAPI{converseStreamFn: func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamOutput, error) {
		return nil, errors.New("connect refused")
	}}
	usageRepo := newFakeUsageRepo()
	engine := setupChatRouter(newTestService(brt), usageRepo)

	body, _ := json.Marshal(api.ChatRequest{
		Model:    "gpt-4o-mini",
		Stream:   true,
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))

	usageRepo.waitForWrite(t)
	usageRepo.mu.Lock()
	require.Len(t, usageRepo.rows, 1)
	assert.False(t, usageRepo.rows[0].Success)
	usageRepo.mu.Unlock()
}

func TestHandleChatCompletions_StreamValidationFailureNeverOpensUpstream(t *testing.T) {
	called := false
	brt := &fakeBedrockAPI{converseStreamFn: func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamOutput, error) {
		called = true
		return &bedrockruntime.ConverseStreamOutput{}, nil
	}}
	engine := setupChatRouter(newTestService(brt), newFakeUsageRepo())

	body, _ := json.Marshal(api.ChatRequest{Model: "gpt-4o-mini", Stream: true})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}
