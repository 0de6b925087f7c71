package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/openaicompat/bedrock-gateway/internal/store"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

// repository implements store.KeyStore over a *sqlx.DB.
type repository struct {
	db *sqlx.DB
}

func (r *repository) APIKeys() store.APIKeyRepository             { return &apiKeyRepo{db: r.db} }
func (r *repository) Usage() store.UsageRepository                { return &usageRepo{db: r.db} }
func (r *repository) ModelMappings() store.ModelMappingRepository { return &mappingRepo{db: r.db} }

func (r *repository) Ready(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *repository) Close() error {
	return r.db.Close()
}

type apiKeyRepo struct {
	db *sqlx.DB
}

func (r *apiKeyRepo) Get(ctx context.Context, apiKey string) (*model.APIKeyRecord, error) {
	var rec model.APIKeyRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM api_keys WHERE api_key = ?`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *apiKeyRepo) Put(ctx context.Context, rec *model.APIKeyRecord) error {
	query := `
	INSERT INTO api_keys (api_key, user_id, name, is_active, rate_limit, created_at, metadata_json)
	VALUES (:api_key, :user_id, :name, :is_active, :rate_limit, :created_at, :metadata_json)
	ON CONFLICT(api_key) DO UPDATE SET
		user_id = excluded.user_id,
		name = excluded.name,
		is_active = excluded.is_active,
		rate_limit = excluded.rate_limit,
		metadata_json = excluded.metadata_json`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	return err
}

func (r *apiKeyRepo) Deactivate(ctx context.Context, apiKey string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = 0 WHERE api_key = ? AND is_active = 1`, apiKey)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) ListByUserID(ctx context.Context, userID string) ([]model.APIKeyRecord, error) {
	var recs []model.APIKeyRecord
	err := r.db.SelectContext(ctx, &recs, `SELECT * FROM api_keys WHERE user_id = ?`, userID)
	return recs, err
}

// EncodeMetadata marshals a metadata map onto a record before Put. Kept as
// a free function rather than a method so callers building a record from
// scratch (cmd/seed) don't need a repository handle.
func EncodeMetadata(rec *model.APIKeyRecord, meta map[string]string) error {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	rec.MetadataRaw.String = string(raw)
	rec.MetadataRaw.Valid = true
	return nil
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(rec *model.APIKeyRecord) (map[string]string, error) {
	if !rec.MetadataRaw.Valid || rec.MetadataRaw.String == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(rec.MetadataRaw.String), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

type usageRepo struct {
	db *sqlx.DB
}

func (r *usageRepo) Put(ctx context.Context, row *model.UsageRow) error {
	query := `
	INSERT INTO usage (api_key, timestamp, request_id, model, prompt_tokens, completion_tokens, total_tokens, success, error_message, latency_ms)
	VALUES (:api_key, :timestamp, :request_id, :model, :prompt_tokens, :completion_tokens, :total_tokens, :success, :error_message, :latency_ms)`
	_, err := r.db.NamedExecContext(ctx, query, row)
	return err
}

func (r *usageRepo) GetByRequestID(ctx context.Context, requestID string) (*model.UsageRow, error) {
	var row model.UsageRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM usage WHERE request_id = ?`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return &row, err
}

type mappingRepo struct {
	db *sqlx.DB
}

func (r *mappingRepo) Get(ctx context.Context, openAIModelID string) (string, error) {
	var upstreamID string
	err := r.db.GetContext(ctx, &upstreamID, `SELECT upstream_model_id FROM model_mapping WHERE openai_model_id = ?`, openAIModelID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return upstreamID, err
}

func (r *mappingRepo) Put(ctx context.Context, openAIModelID, upstreamModelID string) error {
	query := `
	INSERT INTO model_mapping (openai_model_id, upstream_model_id, updated_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(openai_model_id) DO UPDATE SET
		upstream_model_id = excluded.upstream_model_id,
		updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, query, openAIModelID, upstreamModelID)
	return err
}

func (r *mappingRepo) List(ctx context.Context) ([]model.ModelMappingRow, error) {
	var rows []model.ModelMappingRow
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM model_mapping`)
	return rows, err
}
