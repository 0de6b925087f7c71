// Package upstream invokes the Bedrock Converse and ConverseStream
// operations, converting transport and service errors into the
// gateway's canonical error kinds and retrying transient failures with
// exponential backoff and full jitter.
package upstream

import (
	"context"
	"errors"
	"math/rand"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
)

// bedrockAPI is the subset of *bedrockruntime.Client this package
// calls, narrowed to an interface so tests can substitute a fake.
type bedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client wraps the Bedrock runtime SDK client with retry and timeout
// policy applied uniformly to unary and streaming calls.
type Client struct {
	brt bedrockAPI

	maxRetries     int
	retryBaseDelay time.Duration
	unaryTimeout   time.Duration
	streamTimeout  time.Duration
}

type Option func(*Client)

func WithMaxRetries(n int) Option            { return func(c *Client) { c.maxRetries = n } }
func WithRetryBaseDelay(d time.Duration) Option { return func(c *Client) { c.retryBaseDelay = d } }
func WithUnaryTimeout(d time.Duration) Option   { return func(c *Client) { c.unaryTimeout = d } }
func WithStreamTimeout(d time.Duration) Option  { return func(c *Client) { c.streamTimeout = d } }

// New builds a Client from the ambient AWS config for region.
func New(ctx context.Context, region string, opts ...Option) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, gwerrors.Internal("failed to load AWS configuration", err)
	}

	c := &Client{
		brt:            bedrockruntime.NewFromConfig(cfg),
		maxRetries:     2,
		retryBaseDelay: 250 * time.Millisecond,
		unaryTimeout:   120 * time.Second,
		streamTimeout:  300 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromClient wraps an already-constructed bedrockAPI implementation
// (the real SDK client, or a test fake).
func NewFromClient(brt bedrockAPI, opts ...Option) *Client {
	c := &Client{
		brt:            brt,
		maxRetries:     2,
		retryBaseDelay: 250 * time.Millisecond,
		unaryTimeout:   120 * time.Second,
		streamTimeout:  300 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Converse performs one unary call, retrying on upstream_unavailable
// and upstream_throttled.
func (c *Client) Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.unaryTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		out, err := c.brt.Converse(ctx, input)
		if err == nil {
			return out, nil
		}

		kind := classify(err)
		lastErr = wrapUpstreamErr(kind, err)
		if !retryable(kind) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// ConverseStream opens a streaming call against ctx, which the caller
// must already have bounded to StreamTimeout for the life of the
// stream (deriving a timeout here would cancel the stream the moment
// this function returns). A failed initial connect is retried here, up
// to maxRetries times for throttled or unavailable failures; once a
// stream has been returned nothing is retried, so a mid-stream failure
// is never retried.
func (c *Client) ConverseStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (*bedrockruntime.ConverseStreamOutput, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		out, err := c.brt.ConverseStream(ctx, input)
		if err == nil {
			return out, nil
		}

		kind := classify(err)
		lastErr = wrapUpstreamErr(kind, err)
		if !retryable(kind) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// UnaryTimeout and StreamTimeout expose the configured deadlines so
// the orchestrating service can bound the context it passes in.
func (c *Client) UnaryTimeout() time.Duration  { return c.unaryTimeout }
func (c *Client) StreamTimeout() time.Duration { return c.streamTimeout }

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := c.retryBaseDelay * time.Duration(1<<(attempt-1))
	jittered := time.Duration(rand.Int63n(int64(backoff) + 1))
	select {
	case <-time.After(jittered):
		return nil
	case <-ctx.Done():
		return gwerrors.Wrap(gwerrors.KindUpstreamUnavailable, "upstream call canceled while backing off", ctx.Err())
	}
}

func retryable(kind gwerrors.Kind) bool {
	return kind == gwerrors.KindUpstreamUnavailable || kind == gwerrors.KindUpstreamThrottled
}

// classify maps an AWS SDK error to a canonical kind: throttling and
// connect/timeout failures are retryable; 4xx-equivalent validation
// failures surface as invalid_request_error; access-denied and
// not-found errors map to permission_error and not_found_error; any
// other upstream API error is upstream_server, and errors that carry
// no API error code are treated as upstream_unavailable.
func classify(err error) gwerrors.Kind {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return gwerrors.KindUpstreamThrottled
		case "ServiceUnavailableException", "ModelTimeoutException":
			return gwerrors.KindUpstreamUnavailable
		case "ValidationException", "ModelErrorException", "ModelNotReadyException":
			return gwerrors.KindInvalidRequest
		case "AccessDeniedException":
			return gwerrors.KindPermission
		case "ResourceNotFoundException":
			return gwerrors.KindNotFound
		default:
			return gwerrors.KindUpstreamServer
		}
	}

	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return gwerrors.KindUpstreamUnavailable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return gwerrors.KindUpstreamUnavailable
	}

	return gwerrors.KindUpstreamUnavailable
}

func wrapUpstreamErr(kind gwerrors.Kind, cause error) *gwerrors.Error {
	switch kind {
	case gwerrors.KindUpstreamThrottled:
		return gwerrors.Wrap(kind, "upstream Bedrock Converse call was throttled", cause)
	case gwerrors.KindUpstreamUnavailable:
		return gwerrors.Wrap(kind, "upstream Bedrock Converse call failed to connect or timed out", cause)
	case gwerrors.KindInvalidRequest:
		return gwerrors.Wrap(kind, "upstream rejected the translated request", cause)
	case gwerrors.KindPermission:
		return gwerrors.Wrap(kind, "upstream denied access to the requested model", cause)
	case gwerrors.KindNotFound:
		return gwerrors.Wrap(kind, "upstream model not found", cause)
	default:
		return gwerrors.Wrap(gwerrors.KindUpstreamServer, "upstream Bedrock Converse call failed", cause)
	}
}
