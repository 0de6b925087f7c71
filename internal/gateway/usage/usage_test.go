package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaicompat/bedrock-gateway/internal/store/model"
)

type fakeUsageRepo struct {
	putFn func(ctx context.Context, row *model.UsageRow) error
	last  *model.UsageRow
}

func (f *fakeUsageRepo) Put(ctx context.Context, row *model.UsageRow) error {
	f.last = row
	if f.putFn != nil {
		return f.putFn(ctx, row)
	}
	return nil
}

func (f *fakeUsageRepo) GetByRequestID(ctx context.Context, requestID string) (*model.UsageRow, error) {
	return nil, errors.New("not used in this test")
}

func TestRecord_WritesRow(t *testing.T) {
	repo := &fakeUsageRepo{}
	r := New(repo, zap.NewNop())
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	r.Record(context.Background(), Entry{
		APIKey:           "sk-test",
		RequestID:        "req_1",
		Model:            "gpt-4o",
		PromptTokens:     3,
		CompletionTokens: 2,
		TotalTokens:      5,
		Success:          true,
		StartedAt:        time.Unix(1_700_000_000, 0).Add(-250 * time.Millisecond),
	})

	require.NotNil(t, repo.last)
	assert.Equal(t, "req_1", repo.last.RequestID)
	assert.Equal(t, 5, repo.last.TotalTokens)
	assert.True(t, repo.last.Success)
	assert.Equal(t, int64(250), repo.last.LatencyMS)
	assert.False(t, repo.last.ErrorMessage.Valid)
}

func TestRecord_CarriesErrorMessage(t *testing.T) {
	repo := &fakeUsageRepo{}
	r := New(repo, zap.NewNop())

	r.Record(context.Background(), Entry{
		RequestID:    "req_2",
		Success:      false,
		ErrorMessage: "upstream_unavailable",
		StartedAt:    time.Now(),
	})

	require.NotNil(t, repo.last)
	assert.True(t, repo.last.ErrorMessage.Valid)
	assert.Equal(t, "upstream_unavailable", repo.last.ErrorMessage.String)
}

func TestRecord_SwallowsWriteFailure(t *testing.T) {
	repo := &fakeUsageRepo{putFn: func(ctx context.Context, row *model.UsageRow) error {
		return errors.New("disk full")
	}}
	r := New(repo, zap.NewNop())

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry{RequestID: "req_3", StartedAt: time.Now()})
	})
}
