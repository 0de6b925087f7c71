// Package gateway wires the Authenticator, RateLimiter, ModelResolver,
// RequestTranslator, UpstreamClient, ResponseTranslator, and
// StreamTranslator into the single request admission pipeline: auth
// and rate limiting are applied by the HTTP middleware chain, and
// Service starts at model resolution and carries a request through to
// a translated OpenAI-shaped response.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/openaicompat/bedrock-gateway/internal/gateway/resolver"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/translate"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/upstream"
	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

// Service is the request-scoped entry point the HTTP handlers call
// after authentication and rate limiting have already run.
type Service struct {
	resolver       *resolver.Resolver
	reqTranslator  *translate.RequestTranslator
	respTranslator *translate.ResponseTranslator
	upstream       *upstream.Client
	now            func() time.Time
}

func New(res *resolver.Resolver, reqTr *translate.RequestTranslator, respTr *translate.ResponseTranslator, up *upstream.Client) *Service {
	return &Service{resolver: res, reqTranslator: reqTr, respTranslator: respTr, upstream: up, now: time.Now}
}

// ResolveModel maps a client-facing model id to the id the upstream
// expects, per the override-table / default-table / passthrough order.
func (s *Service) ResolveModel(ctx context.Context, clientModelID string) (string, error) {
	return s.resolver.Resolve(ctx, clientModelID)
}

// ListModelIDs returns the union of default and override model ids,
// sorted, for GET /v1/models.
func (s *Service) ListModelIDs(ctx context.Context) []string {
	return s.resolver.ListKnownIDs(ctx)
}

// Chat runs one request through translation and the upstream Converse
// call, returning the OpenAI-shaped unary response.
func (s *Service) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	upstreamID, err := s.resolver.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	input, err := s.reqTranslator.Translate(ctx, req, upstreamID)
	if err != nil {
		return nil, err
	}

	out, err := s.upstream.Converse(ctx, input)
	if err != nil {
		return nil, err
	}

	return s.respTranslator.Translate(out, req.Model)
}

// eventStream is the subset of the SDK's event-stream reader StartStream
// consumes; narrowed to an interface so tests can substitute a fake.
type eventStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// StreamSession holds an opened upstream event stream, ready to be
// drained by Run. Resolving the model, translating the request, and
// opening the stream all happen in StartStream, before any byte of the
// SSE response has been written, so a caller can still turn a
// StartStream failure into a normal HTTP error response. The context
// StartStream derives to bound the stream's total lifetime to
// upstream.Client.StreamTimeout is held open until Run returns.
type StreamSession struct {
	stream     eventStream
	translator *translate.StreamTranslator
	cancel     context.CancelFunc
}

// StartStream resolves, translates, and opens the upstream stream. Any
// error it returns is a pre-stream failure. The stream itself runs
// under a context bounded to the upstream client's configured
// StreamTimeout, covering admission through the terminal event per
// spec's 300s streaming deadline; Run cancels it on return.
func (s *Service) StartStream(ctx context.Context, req *api.ChatRequest) (*StreamSession, error) {
	upstreamID, err := s.resolver.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	input, err := s.reqTranslator.Translate(ctx, req, upstreamID)
	if err != nil {
		return nil, err
	}

	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:                      input.ModelId,
		Messages:                     input.Messages,
		System:                       input.System,
		InferenceConfig:              input.InferenceConfig,
		ToolConfig:                   input.ToolConfig,
		AdditionalModelRequestFields: input.AdditionalModelRequestFields,
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.upstream.StreamTimeout())

	out, err := s.upstream.ConverseStream(streamCtx, streamInput)
	if err != nil {
		cancel()
		return nil, err
	}

	return &StreamSession{
		stream:     out.GetStream(),
		translator: translate.NewStreamTranslator(translate.NewChatCompletionID(), s.now().Unix(), req.Model),
		cancel:     cancel,
	}, nil
}

// Run drains the opened stream, invoking emit with each OpenAI-shaped
// chunk in upstream event order, followed by a terminal Done event.
// Once Run has been called, any failure is a mid-stream failure per
// §4.6: Run reports it in-band (a synthetic error event, then Done)
// rather than returning it for the caller to turn into an HTTP status,
// since headers have necessarily already flushed by this point.
func (s *StreamSession) Run(emit func(api.StreamEvent) error) error {
	defer s.cancel()
	defer s.stream.Close()

	for event := range s.stream.Events() {
		chunks, err := s.translator.HandleEvent(event)
		if err != nil {
			return failMidStream(emit, s.translator, err)
		}
		for _, chunk := range chunks {
			if err := emit(api.StreamEvent{Chunk: chunk}); err != nil {
				return err
			}
		}
	}

	if err := s.stream.Err(); err != nil {
		return failMidStream(emit, s.translator, wrapStreamErr(err))
	}

	final := s.translator.Finish()
	if err := emit(api.StreamEvent{Chunk: final}); err != nil {
		return err
	}
	return emit(api.StreamEvent{Done: true})
}

// failMidStream implements the §4.6 mid-stream failure protocol: once
// Run has started draining the stream, headers have flushed and the
// failure must be reported inside the stream, never as an HTTP error
// status. It emits, in order, a normal chunk with finish_reason "error"
// (so a client reading only unnamed data: events still gets a terminal
// signal), the out-of-band event: error payload carrying the failure
// detail, then Done.
func failMidStream(emit func(api.StreamEvent) error, translator *translate.StreamTranslator, cause error) error {
	var gwErr *gwerrors.Error
	if ge, ok := cause.(*gwerrors.Error); ok {
		gwErr = ge
	} else {
		gwErr = gwerrors.Internal("stream terminated unexpectedly", cause)
	}
	body := gwErr.Body()["error"].(map[string]any)

	errEvent := &api.ErrorBody{
		Message: fmt.Sprint(body["message"]),
		Type:    fmt.Sprint(body["type"]),
		Code:    fmt.Sprint(body["code"]),
	}
	if p, ok := body["param"].(string); ok {
		errEvent.Param = &p
	}

	if err := emit(api.StreamEvent{Chunk: translator.FinishWithReason("error")}); err != nil {
		return err
	}
	if err := emit(api.StreamEvent{Err: errEvent}); err != nil {
		return err
	}
	if err := emit(api.StreamEvent{Done: true}); err != nil {
		return err
	}
	return cause
}

func wrapStreamErr(err error) error {
	if _, ok := err.(*gwerrors.Error); ok {
		return err
	}
	return gwerrors.Wrap(gwerrors.KindUpstreamUnavailable, "upstream stream ended with an error", err)
}
