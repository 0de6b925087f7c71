package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/config"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/authn"
	"github.com/openaicompat/bedrock-gateway/internal/server/middleware"
	"github.com/openaicompat/bedrock-gateway/internal/store"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

type fakeAPIKeyRepo struct {
	byKey map[string]*model.APIKeyRecord
}

func (r *fakeAPIKeyRepo) Get(ctx context.Context, apiKey string) (*model.APIKeyRecord, error) {
	if rec, ok := r.byKey[apiKey]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}
func (r *fakeAPIKeyRepo) Put(ctx context.Context, rec *model.APIKeyRecord) error { return nil }
func (r *fakeAPIKeyRepo) Deactivate(ctx context.Context, apiKey string) error    { return nil }
func (r *fakeAPIKeyRepo) ListByUserID(ctx context.Context, userID string) ([]model.APIKeyRecord, error) {
	return nil, errors.New("not used")
}

func setupAuthRouter(a *authn.Authenticator, cfg *config.Config) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.ErrorHandler(zap.NewNop()))
	engine.Use(middleware.Auth(a, cfg))

	var seenUserID string
	engine.GET("/v1/probe", func(c *gin.Context) {
		rec, _ := c.Request.Context().Value(store.ContextKeyAPIKey).(*model.APIKeyRecord)
		if rec != nil {
			seenUserID = rec.UserID
		}
		c.Status(http.StatusOK)
	})
	return engine, &seenUserID
}

func TestAuth_BypassesValidationWhenRequireAPIKeyFalse(t *testing.T) {
	a := authn.New(&fakeAPIKeyRepo{byKey: map[string]*model.APIKeyRecord{}}, "")
	cfg := &config.Config{RequireAPIKey: false}
	engine, seenUserID := setupAuthRouter(a, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/probe", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", *seenUserID)
}

func TestAuth_RejectsMissingCredentialWhenRequireAPIKeyTrue(t *testing.T) {
	a := authn.New(&fakeAPIKeyRepo{byKey: map[string]*model.APIKeyRecord{}}, "")
	cfg := &config.Config{RequireAPIKey: true}
	engine, _ := setupAuthRouter(a, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/probe", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_AcceptsValidCredentialWhenRequireAPIKeyTrue(t *testing.T) {
	repo := &fakeAPIKeyRepo{byKey: map[string]*model.APIKeyRecord{
		"sk-live-abc": {APIKey: "sk-live-abc", UserID: "user-1", IsActive: true, RateLimit: 60},
	}}
	a := authn.New(repo, "")
	cfg := &config.Config{RequireAPIKey: true}
	engine, seenUserID := setupAuthRouter(a, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/probe", nil)
	req.Header.Set("Authorization", "Bearer sk-live-abc")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", *seenUserID)
}
