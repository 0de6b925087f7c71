package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
)

type throttleError struct{}

func (throttleError) Error() string     { return "throttled" }
func (throttleError) ErrorCode() string { return "ThrottlingException" }
func (throttleError) ErrorMessage() string { return "throttled" }
func (throttleError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

type validationError struct{}

func (validationError) Error() string        { return "bad request" }
func (validationError) ErrorCode() string    { return "ValidationException" }
func (validationError) ErrorMessage() string { return "bad request" }
func (validationError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type fakeAPI struct {
	converseFn func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	calls      int
}

func (f *fakeAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.calls++
	return f.converseFn(ctx, params)
}

func (f *fakeAPI) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, errors.New("not used in this test")
}

func TestConverse_RetriesOnThrottle_ThenSucceeds(t *testing.T) {
	attempts := 0
	fake := &fakeAPI{converseFn: func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
		attempts++
		if attempts < 2 {
			return nil, throttleError{}
		}
		return &bedrockruntime.ConverseOutput{}, nil
	}}

	c := NewFromClient(fake, WithRetryBaseDelay(time.Millisecond))
	out, err := c.Converse(context.Background(), &bedrockruntime.ConverseInput{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, 2, attempts)
}

func TestConverse_ExhaustsRetriesOnPersistentThrottle(t *testing.T) {
	fake := &fakeAPI{converseFn: func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
		return nil, throttleError{}
	}}

	c := NewFromClient(fake, WithMaxRetries(2), WithRetryBaseDelay(time.Millisecond))
	_, err := c.Converse(context.Background(), &bedrockruntime.ConverseInput{})
	require.Error(t, err)
	assert.Equal(t, 3, fake.calls)

	var gwErr *gwerrors.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gwerrors.KindUpstreamThrottled, gwErr.Kind)
}

func TestConverse_DoesNotRetryValidationError(t *testing.T) {
	fake := &fakeAPI{converseFn: func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
		return nil, validationError{}
	}}

	c := NewFromClient(fake, WithRetryBaseDelay(time.Millisecond))
	_, err := c.Converse(context.Background(), &bedrockruntime.ConverseInput{})
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)

	var gwErr *gwerrors.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gwerrors.KindInvalidRequest, gwErr.Kind)
}

func TestClassify_UnknownErrorDefaultsToUnavailable(t *testing.T) {
	assert.Equal(t, gwerrors.KindUpstreamUnavailable, classify(errors.New("connection refused")))
}
