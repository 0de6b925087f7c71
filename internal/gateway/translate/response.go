package translate

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"

	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewChatCompletionID returns a fresh "chatcmpl-" id, shared by the
// unary and streaming response paths.
func NewChatCompletionID() string {
	return "chatcmpl-" + randomBase62(24)
}

// randomBase62 returns a random base62 string of length n, used for
// chat completion ids the way the OpenAI wire format shapes them.
func randomBase62(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Alphabet))))
		if err != nil {
			// crypto/rand failure is treated as unrecoverable process state,
			// not a request-scoped error.
			panic(fmt.Sprintf("translate: failed to read random bytes: %v", err))
		}
		buf[i] = base62Alphabet[idx.Int64()]
	}
	return string(buf)
}

// ResponseTranslator assembles a unary OpenAI ChatCompletion body from
// a terminal Bedrock Converse response.
type ResponseTranslator struct {
	now func() int64
}

func NewResponseTranslator(now func() int64) *ResponseTranslator {
	return &ResponseTranslator{now: now}
}

func (t *ResponseTranslator) Translate(out *bedrockruntime.ConverseOutput, clientModel string) (*api.ChatResponse, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, fmt.Errorf("translate: upstream response carried no message output")
	}

	body := &api.ChoiceBody{Role: "assistant"}
	var textParts []string
	var thinkingParts []string
	var toolCalls []api.ToolCall

	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			textParts = append(textParts, b.Value)
		case *types.ContentBlockMemberToolUse:
			args, err := marshalToolInput(b.Value.Input)
			if err != nil {
				return nil, err
			}
			id := ""
			if b.Value.ToolUseId != nil {
				id = *b.Value.ToolUseId
			}
			name := ""
			if b.Value.Name != nil {
				name = *b.Value.Name
			}
			toolCalls = append(toolCalls, api.ToolCall{
				ID:       id,
				Type:     "function",
				Function: api.FunctionCall{Name: name, Arguments: args},
			})
		case *types.ContentBlockMemberReasoningContent:
			if rt, ok := b.Value.(*types.ReasoningContentBlockMemberReasoningText); ok && rt.Value.Text != nil {
				thinkingParts = append(thinkingParts, *rt.Value.Text)
			}
		}
	}

	if len(textParts) > 0 {
		content := joinStrings(textParts)
		body.Content = &content
	} else if len(toolCalls) == 0 {
		empty := ""
		body.Content = &empty
	}
	if len(thinkingParts) > 0 {
		body.Thinking = joinStrings(thinkingParts)
	}
	body.ToolCalls = toolCalls

	choice := api.Choice{
		Index:        0,
		Message:      body,
		FinishReason: mapFinishReason(out.StopReason),
	}

	resp := &api.ChatResponse{
		ID:      NewChatCompletionID(),
		Object:  "chat.completion",
		Created: t.now(),
		Model:   clientModel,
		Choices: []api.Choice{choice},
	}

	if out.Usage != nil {
		prompt := int(deref32(out.Usage.InputTokens))
		completion := int(deref32(out.Usage.OutputTokens))
		resp.Usage = &api.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
	}

	return resp, nil
}

func deref32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

func joinStrings(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}

func marshalToolInput(input document.Interface) (string, error) {
	if input == nil {
		return "{}", nil
	}
	b, err := input.MarshalSmithyDocument()
	if err != nil {
		return "", fmt.Errorf("translate: failed to decode tool input document: %w", err)
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return "", fmt.Errorf("translate: failed to decode tool input document: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("translate: failed to marshal tool input: %w", err)
	}
	return string(out), nil
}

func mapFinishReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return "stop"
	case types.StopReasonMaxTokens:
		return "length"
	case types.StopReasonToolUse:
		return "tool_calls"
	case types.StopReasonContentFiltered:
		return "content_filter"
	default:
		return "stop"
	}
}
