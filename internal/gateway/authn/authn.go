// Package authn implements the Authenticator (C3): bearer/x-api-key
// extraction, master-key bypass, and KeyStore lookup.
package authn

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/openaicompat/bedrock-gateway/internal/gateway/cache"
	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
	"github.com/openaicompat/bedrock-gateway/internal/store"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// keyCacheTTL bounds how stale a cached key record can be: a
// deactivated key is honored by the store within this window even if
// served from cache.
const keyCacheTTL = 30 * time.Second

// Authenticator validates an incoming request's credential against the
// KeyStore, with a configured master key bypassing it entirely. A
// lookup cache sits in front of the store so a sustained request rate
// from one key doesn't require a database round trip per request.
type Authenticator struct {
	keys      store.APIKeyRepository
	masterKey string
	cache     cache.Service
}

func New(keys store.APIKeyRepository, masterKey string) *Authenticator {
	return &Authenticator{keys: keys, masterKey: masterKey, cache: cache.NewMemory()}
}

// WithCache swaps in a shared cache (e.g. cache.NewRedis), for a
// gateway running as more than one replica.
func (a *Authenticator) WithCache(c cache.Service) *Authenticator {
	a.cache = c
	return a
}

// ExtractToken pulls the bearer credential from Authorization, falling
// back to x-api-key. Authorization takes precedence when both are set.
func ExtractToken(h http.Header) string {
	if auth := h.Get("Authorization"); auth != "" {
		if m := bearerPattern.FindStringSubmatch(auth); m != nil {
			return m[1]
		}
	}
	return h.Get("x-api-key")
}

// masterRecord is the synthetic, unlimited-rate record returned when
// the presented token equals the configured master key.
func masterRecord(token string) *model.APIKeyRecord {
	return &model.APIKeyRecord{
		APIKey:    token,
		UserID:    "master",
		Name:      "master",
		IsActive:  true,
		RateLimit: 0, // 0 is the bypass sentinel the rate limiter checks for
	}
}

// AnonymousRecord is the synthetic record Auth injects when
// require_api_key is false, matching the original's bypass of
// credential validation entirely rather than just relaxing it.
func AnonymousRecord() *model.APIKeyRecord {
	return &model.APIKeyRecord{
		APIKey:   "anonymous",
		UserID:   "anonymous",
		Name:     "anonymous",
		IsActive: true,
	}
}

// Authenticate extracts and validates a request's credential. The
// bearer token itself is never included in the returned error or
// logged by this function.
func (a *Authenticator) Authenticate(ctx context.Context, h http.Header) (*model.APIKeyRecord, error) {
	token := ExtractToken(h)
	if token == "" {
		return nil, gwerrors.Authentication("missing API key: include it in the Authorization header as 'Bearer <key>' or in the x-api-key header")
	}

	if a.masterKey != "" && token == a.masterKey {
		return masterRecord(token), nil
	}

	var cached model.APIKeyRecord
	if err := a.cache.Get(ctx, token, &cached); err == nil {
		if !cached.IsActive {
			return nil, gwerrors.Authentication("invalid API key provided")
		}
		return &cached, nil
	}

	rec, err := a.keys.Get(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, gwerrors.Authentication("invalid API key provided")
		}
		return nil, gwerrors.Internal("failed to look up API key", err)
	}

	_ = a.cache.Set(ctx, token, rec, keyCacheTTL)

	if !rec.IsActive {
		return nil, gwerrors.Authentication("invalid API key provided")
	}

	return rec, nil
}

// IsMaster reports whether rec bypasses rate limiting.
func IsMaster(rec *model.APIKeyRecord) bool {
	return rec.UserID == "master" && rec.RateLimit == 0
}
