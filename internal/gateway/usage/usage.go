// Package usage records one row per completed request describing
// token consumption and outcome, the way the system this gateway
// fronts ingests usage events into its analytics pipeline: writes are
// best-effort and never block or fail the client response.
package usage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/store"
	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

// Recorder writes usage rows after a request completes. It is called
// at most once per request, on every exit path (success, upstream
// failure, client-caused failure alike).
type Recorder struct {
	repo store.UsageRepository
	log  *zap.Logger
	now  func() time.Time
}

func New(repo store.UsageRepository, log *zap.Logger) *Recorder {
	return &Recorder{repo: repo, log: log, now: time.Now}
}

// Entry carries the fields of one completed request.
type Entry struct {
	APIKey           string
	RequestID        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Success          bool
	ErrorMessage     string
	StartedAt        time.Time
}

// Record writes entry's row. Any write failure is logged and
// swallowed: the usage table is a sink for observability, never a
// dependency of the request path.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := &model.UsageRow{
		APIKey:           e.APIKey,
		Timestamp:        r.now().UnixMilli(),
		RequestID:        e.RequestID,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
		Success:          e.Success,
		LatencyMS:        r.now().Sub(e.StartedAt).Milliseconds(),
	}
	if e.ErrorMessage != "" {
		row.ErrorMessage = sql.NullString{String: e.ErrorMessage, Valid: true}
	}

	// Detach from the request's context: a client disconnect or
	// deadline must not prevent the usage row for that same request
	// from being written.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.repo.Put(writeCtx, row); err != nil {
		r.log.Error("failed to write usage row",
			zap.String("request_id", e.RequestID),
			zap.String("api_key", e.APIKey),
			zap.Error(err),
		)
	}
}
