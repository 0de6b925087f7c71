// Package model defines the row shapes persisted by the SQLite-backed
// KeyStore. They mirror the DynamoDB item shapes of the system this
// gateway fronts, flattened into relational columns.
package model

import (
	"database/sql"
	"time"
)

// APIKeyRecord is one row of the api_keys table. It is the credential
// record the Authenticator looks up, never deleted by the core, only
// soft-deactivated via IsActive.
type APIKeyRecord struct {
	APIKey      string         `db:"api_key" json:"api_key"`
	UserID      string         `db:"user_id" json:"user_id"`
	Name        string         `db:"name" json:"name"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	RateLimit   int            `db:"rate_limit" json:"rate_limit"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	MetadataRaw sql.NullString `db:"metadata_json" json:"-"`
}

// UsageRow is one row of the usage table, written exactly once per
// completed request by the UsageRecorder.
type UsageRow struct {
	APIKey           string         `db:"api_key" json:"api_key"`
	Timestamp        int64          `db:"timestamp" json:"timestamp"` // unix millis
	RequestID        string         `db:"request_id" json:"request_id"`
	Model            string         `db:"model" json:"model"`
	PromptTokens     int            `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int            `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int            `db:"total_tokens" json:"total_tokens"`
	Success          bool           `db:"success" json:"success"`
	ErrorMessage     sql.NullString `db:"error_message" json:"error_message,omitempty"`
	LatencyMS        int64          `db:"latency_ms" json:"latency_ms"`
}

// ModelMappingRow is one row of the model_mapping override table.
type ModelMappingRow struct {
	OpenAIModelID    string    `db:"openai_model_id" json:"openai_model_id"`
	UpstreamModelID  string    `db:"upstream_model_id" json:"upstream_model_id"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
