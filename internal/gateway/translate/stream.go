package translate

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

type blockKind int

const (
	blockText blockKind = iota
	blockToolUse
	blockThinking
)

type blockState struct {
	kind          blockKind
	toolCallIndex int
}

// StreamTranslator turns an ordered Bedrock ConverseStream event
// sequence into an ordered sequence of OpenAI chunk objects, tracking
// per-block state across contentBlockStart/Delta/Stop events.
type StreamTranslator struct {
	id      string
	created int64
	model   string

	roleSent      bool
	blocks        map[int32]*blockState
	nextToolIndex int

	finishReason string
	usage        *api.Usage
}

func NewStreamTranslator(id string, created int64, model string) *StreamTranslator {
	return &StreamTranslator{
		id:      id,
		created: created,
		model:   model,
		blocks:  make(map[int32]*blockState),
	}
}

// baseChunk returns an empty chunk envelope with this stream's id,
// object, created, and model already set.
func (s *StreamTranslator) baseChunk() *api.ChatResponse {
	return &api.ChatResponse{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
	}
}

// HandleEvent processes one upstream event and returns zero or more
// OpenAI chunks to emit, in order.
func (s *StreamTranslator) HandleEvent(event types.ConverseStreamOutput) ([]*api.ChatResponse, error) {
	switch e := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return s.handleMessageStart(), nil
	case *types.ConverseStreamOutputMemberContentBlockStart:
		return s.handleContentBlockStart(e.Value), nil
	case *types.ConverseStreamOutputMemberContentBlockDelta:
		return s.handleContentBlockDelta(e.Value), nil
	case *types.ConverseStreamOutputMemberContentBlockStop:
		return nil, nil
	case *types.ConverseStreamOutputMemberMessageStop:
		s.finishReason = mapFinishReason(e.Value.StopReason)
		return nil, nil
	case *types.ConverseStreamOutputMemberMetadata:
		if e.Value.Usage != nil {
			prompt := int(deref32(e.Value.Usage.InputTokens))
			completion := int(deref32(e.Value.Usage.OutputTokens))
			s.usage = &api.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func (s *StreamTranslator) handleMessageStart() []*api.ChatResponse {
	s.roleSent = true
	chunk := s.baseChunk()
	chunk.Choices = []api.Choice{{
		Index: 0,
		Delta: &api.ChoiceBody{Role: "assistant"},
	}}
	return []*api.ChatResponse{chunk}
}

func (s *StreamTranslator) handleContentBlockStart(ev types.ContentBlockStartEvent) []*api.ChatResponse {
	index := deref32(ev.ContentBlockIndex)

	switch start := ev.Start.(type) {
	case *types.ContentBlockStartMemberToolUse:
		toolIdx := s.nextToolIndex
		s.nextToolIndex++
		s.blocks[index] = &blockState{kind: blockToolUse, toolCallIndex: toolIdx}

		id := ""
		if start.Value.ToolUseId != nil {
			id = *start.Value.ToolUseId
		}
		name := ""
		if start.Value.Name != nil {
			name = *start.Value.Name
		}

		chunk := s.baseChunk()
		chunk.Choices = []api.Choice{{
			Index: 0,
			Delta: &api.ChoiceBody{
				ToolCalls: []api.ToolCall{{
					Index:    &toolIdx,
					ID:       id,
					Type:     "function",
					Function: api.FunctionCall{Name: name, Arguments: ""},
				}},
			},
		}}
		return []*api.ChatResponse{chunk}
	default:
		s.blocks[index] = &blockState{kind: blockText}
		return nil
	}
}

func (s *StreamTranslator) handleContentBlockDelta(ev types.ContentBlockDeltaEvent) []*api.ChatResponse {
	index := deref32(ev.ContentBlockIndex)
	state := s.blocks[index]

	switch delta := ev.Delta.(type) {
	case *types.ContentBlockDeltaMemberText:
		content := delta.Value
		chunk := s.baseChunk()
		chunk.Choices = []api.Choice{{Index: 0, Delta: &api.ChoiceBody{Content: &content}}}
		return []*api.ChatResponse{chunk}
	case *types.ContentBlockDeltaMemberToolUse:
		toolIdx := 0
		if state != nil {
			toolIdx = state.toolCallIndex
		}
		partial := ""
		if delta.Value.Input != nil {
			partial = *delta.Value.Input
		}
		chunk := s.baseChunk()
		chunk.Choices = []api.Choice{{
			Index: 0,
			Delta: &api.ChoiceBody{
				ToolCalls: []api.ToolCall{{
					Index:    &toolIdx,
					Function: api.FunctionCall{Arguments: partial},
				}},
			},
		}}
		return []*api.ChatResponse{chunk}
	case *types.ContentBlockDeltaMemberReasoningContent:
		if rt, ok := delta.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
			chunk := s.baseChunk()
			chunk.Choices = []api.Choice{{Index: 0, Delta: &api.ChoiceBody{Thinking: rt.Value}}}
			return []*api.ChatResponse{chunk}
		}
		return nil
	default:
		return nil
	}
}

// Finish emits the terminal chunk once messageStop has been observed:
// empty delta, mapped finish_reason, and usage if captured.
func (s *StreamTranslator) Finish() *api.ChatResponse {
	chunk := s.baseChunk()
	finishReason := s.finishReason
	if finishReason == "" {
		finishReason = "stop"
	}
	chunk.Choices = []api.Choice{{Index: 0, Delta: &api.ChoiceBody{}, FinishReason: finishReason}}
	if s.usage != nil {
		chunk.Usage = s.usage
	}
	return chunk
}

// FinishWithReason builds a terminal chunk the way Finish does, but with
// a caller-supplied finish reason rather than the reason the upstream
// stream itself reported (or "stop" if it never got that far). Used to
// close out a stream that failed mid-flight with finish_reason "error",
// so a client reading only unnamed data: events still sees a normal
// terminal chunk instead of hanging for one that never comes.
func (s *StreamTranslator) FinishWithReason(reason string) *api.ChatResponse {
	chunk := s.baseChunk()
	chunk.Choices = []api.Choice{{Index: 0, Delta: &api.ChoiceBody{}, FinishReason: reason}}
	if s.usage != nil {
		chunk.Usage = s.usage
	}
	return chunk
}
