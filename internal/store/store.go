package store

import (
	"context"

	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

type contextKey string

// ContextKeyAPIKey carries the authenticated *model.APIKeyRecord for the
// current request, set by the auth middleware.
const ContextKeyAPIKey contextKey = "api_key_record"

// ErrNotFound is returned by lookups that find no row. Callers compare
// against it with errors.Is.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// KeyStore is the persistent KV interface the core depends on: Get,
// Put, Query (secondary-index and list lookups) and one conditional
// update, realized here over three SQLite tables instead of the
// excluded DynamoDB service. None of its repositories has a delete
// operation.
type KeyStore interface {
	APIKeys() APIKeyRepository
	Usage() UsageRepository
	ModelMappings() ModelMappingRepository

	// Ready reports whether the store is reachable.
	Ready(ctx context.Context) error
	Close() error
}

type APIKeyRepository interface {
	// Get looks up a key record by its plaintext api_key value.
	Get(ctx context.Context, apiKey string) (*model.APIKeyRecord, error)
	// Put inserts or replaces a key record.
	Put(ctx context.Context, rec *model.APIKeyRecord) error
	// Deactivate performs the one conditional update the core issues:
	// is_active true -> false, guarded by a WHERE is_active = 1 clause.
	Deactivate(ctx context.Context, apiKey string) error
	// ListByUserID returns every key belonging to a user (secondary index).
	ListByUserID(ctx context.Context, userID string) ([]model.APIKeyRecord, error)
}

type UsageRepository interface {
	// Put writes a usage row. Called exactly once per completed request.
	Put(ctx context.Context, row *model.UsageRow) error
	// GetByRequestID looks up a usage row by its secondary index.
	GetByRequestID(ctx context.Context, requestID string) (*model.UsageRow, error)
}

type ModelMappingRepository interface {
	// Get returns the override upstream model id, if any.
	Get(ctx context.Context, openAIModelID string) (string, error)
	// Put sets or replaces an override mapping.
	Put(ctx context.Context, openAIModelID, upstreamModelID string) error
	// List returns every override mapping.
	List(ctx context.Context) ([]model.ModelMappingRow, error)
}
