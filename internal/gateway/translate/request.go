// Package translate implements the request/response/stream translation
// between the OpenAI Chat Completions wire shape and the AWS Bedrock
// Converse API, grounded on the Converse mapping rules the envoy
// ai-gateway project applies for the same pair of schemas, adapted onto
// the aws-sdk-go-v2 bedrockruntime client types instead of hand-rolled
// JSON structs.
package translate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"

	"github.com/openaicompat/bedrock-gateway/internal/gateway/media"
	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
	"github.com/openaicompat/bedrock-gateway/pkg/api"
)

// maxStopSequences is Bedrock Converse's hard cap on stopSequences
// entries; extras beyond it are silently truncated rather than
// rejected.
const maxStopSequences = 4

// RequestTranslator converts a validated ChatRequest plus its resolved
// upstream model id into a bedrockruntime Converse input.
type RequestTranslator struct {
	images *media.Resolver

	enableVision           bool
	enableToolUse          bool
	enableExtendedThinking bool
}

func NewRequestTranslator(images *media.Resolver, enableVision, enableToolUse, enableExtendedThinking bool) *RequestTranslator {
	return &RequestTranslator{
		images:                 images,
		enableVision:           enableVision,
		enableToolUse:          enableToolUse,
		enableExtendedThinking: enableExtendedThinking,
	}
}

// Translate applies the nine ordered rules: range validation, system
// hoisting, tool/assistant/user rewriting, coalescing, and the
// inferenceConfig/toolConfig/thinking mappings.
func (t *RequestTranslator) Translate(ctx context.Context, req *api.ChatRequest, upstreamModelID string) (*bedrockruntime.ConverseInput, error) {
	if err := t.validateRanges(req); err != nil {
		return nil, err
	}

	system, rest := partitionSystem(req.Messages)

	rewritten := make([]types.Message, 0, len(rest))
	for _, msg := range rest {
		switch msg.Role {
		case "tool":
			m, err := t.toolMessage(msg)
			if err != nil {
				return nil, err
			}
			rewritten = append(rewritten, m)
		case "assistant":
			m, err := t.assistantMessage(msg)
			if err != nil {
				return nil, err
			}
			rewritten = append(rewritten, m)
		case "user":
			m, err := t.userMessage(ctx, msg)
			if err != nil {
				return nil, err
			}
			rewritten = append(rewritten, m)
		default:
			return nil, gwerrors.WithParam(gwerrors.KindInvalidRequest, fmt.Sprintf("unsupported message role %q", msg.Role), "messages.role")
		}
	}

	messages := coalesce(rewritten)

	out := &bedrockruntime.ConverseInput{
		ModelId:  &upstreamModelID,
		Messages: messages,
		System:   system,
	}

	out.InferenceConfig = buildInferenceConfig(req)

	if len(req.Tools) > 0 {
		if !t.enableToolUse {
			return nil, gwerrors.WithParam(gwerrors.KindInvalidRequest, "tool use is disabled on this gateway", "tools")
		}
		toolConfig, err := buildToolConfig(req)
		if err != nil {
			return nil, err
		}
		out.ToolConfig = toolConfig
	}

	if req.Thinking != nil {
		if !t.enableExtendedThinking {
			return nil, gwerrors.WithParam(gwerrors.KindInvalidRequest, "extended thinking is disabled on this gateway", "thinking")
		}
		if req.Thinking.Type == "enabled" {
			if req.Temperature != nil {
				return nil, gwerrors.WithParam(gwerrors.KindInvalidRequest,
					"temperature must be omitted when thinking is enabled", "temperature")
			}
			out.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{
				"thinking": map[string]any{
					"type":          "enabled",
					"budget_tokens": req.Thinking.BudgetTokens,
				},
			})
		}
	}

	return out, nil
}

func (t *RequestTranslator) validateRanges(req *api.ChatRequest) error {
	if len(req.Messages) == 0 {
		return gwerrors.WithParam(gwerrors.KindInvalidRequest, "messages must be non-empty", "messages")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return gwerrors.WithParam(gwerrors.KindInvalidRequest, "temperature must be in [0, 2]", "temperature")
	}
	if req.TopP != nil && (*req.TopP <= 0 || *req.TopP > 1) {
		return gwerrors.WithParam(gwerrors.KindInvalidRequest, "top_p must be in (0, 1]", "top_p")
	}
	if req.MaxTokens != 0 && req.MaxTokens < 1 {
		return gwerrors.WithParam(gwerrors.KindInvalidRequest, "max_tokens must be >= 1", "max_tokens")
	}
	return nil
}

// partitionSystem splits system-role messages into upstream text
// blocks, in order, and returns the remaining messages untouched.
func partitionSystem(messages []api.Message) ([]types.SystemContentBlock, []api.Message) {
	system := make([]types.SystemContentBlock, 0)
	rest := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			for _, text := range contentTexts(msg.Content) {
				system = append(system, &types.SystemContentBlockMemberText{Value: text})
			}
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// contentTexts flattens a Content union into its plain text pieces:
// the whole string, or the text of each text-typed part.
func contentTexts(c api.Content) []string {
	if !c.IsParts {
		return []string{c.Text}
	}
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

func (t *RequestTranslator) toolMessage(msg api.Message) (types.Message, error) {
	text := joinContentTexts(msg.Content)
	return types.Message{
		Role: types.ConversationRoleUser,
		Content: []types.ContentBlock{
			&types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: &msg.ToolCallID,
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: text},
				},
			}},
		},
	}, nil
}

func joinContentTexts(c api.Content) string {
	texts := contentTexts(c)
	if len(texts) == 1 {
		return texts[0]
	}
	joined := ""
	for i, tx := range texts {
		if i > 0 {
			joined += "\n"
		}
		joined += tx
	}
	return joined
}

func (t *RequestTranslator) assistantMessage(msg api.Message) (types.Message, error) {
	blocks := make([]types.ContentBlock, 0, len(msg.ToolCalls)+1)

	for _, text := range contentTexts(msg.Content) {
		if text == "" {
			continue
		}
		blocks = append(blocks, &types.ContentBlockMemberText{Value: text})
	}

	for _, call := range msg.ToolCalls {
		var input map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
			return types.Message{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
				"tool_calls[].function.arguments must be valid JSON", "tool_calls.arguments")
		}
		toolUseID := call.ID
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: &toolUseID,
			Name:      &call.Function.Name,
			Input:     document.NewLazyDocument(input),
		}})
	}

	return types.Message{Role: types.ConversationRoleAssistant, Content: blocks}, nil
}

func (t *RequestTranslator) userMessage(ctx context.Context, msg api.Message) (types.Message, error) {
	if !msg.Content.IsParts {
		return types.Message{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content.Text}},
		}, nil
	}

	blocks := make([]types.ContentBlock, 0, len(msg.Content.Parts))
	for _, part := range msg.Content.Parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, &types.ContentBlockMemberText{Value: part.Text})
		case "image_url":
			if !t.enableVision {
				return types.Message{}, gwerrors.WithParam(gwerrors.KindInvalidRequest, "vision input is disabled on this gateway", "messages.content.image_url")
			}
			if part.ImageURL == nil {
				return types.Message{}, gwerrors.WithParam(gwerrors.KindInvalidRequest, "image_url part missing image_url", "messages.content.image_url")
			}
			img, err := t.images.Resolve(ctx, part.ImageURL.URL)
			if err != nil {
				return types.Message{}, err
			}
			blocks = append(blocks, &types.ContentBlockMemberImage{Value: types.ImageBlock{
				Format: types.ImageFormat(img.Format),
				Source: &types.ImageSourceMemberBytes{Value: img.Bytes},
			}})
		default:
			return types.Message{}, gwerrors.WithParam(gwerrors.KindInvalidRequest, fmt.Sprintf("unsupported content part type %q", part.Type), "messages.content")
		}
	}
	return types.Message{Role: types.ConversationRoleUser, Content: blocks}, nil
}

// coalesce merges consecutive same-role messages, concatenating their
// content blocks in order.
func coalesce(messages []types.Message) []types.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]types.Message, 0, len(messages))
	out = append(out, messages[0])
	for _, m := range messages[1:] {
		last := &out[len(out)-1]
		if last.Role == m.Role {
			last.Content = append(last.Content, m.Content...)
			continue
		}
		out = append(out, m)
	}
	return out
}

func buildInferenceConfig(req *api.ChatRequest) *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{}
	hasConfig := false

	if req.MaxTokens > 0 {
		v := int32(req.MaxTokens)
		cfg.MaxTokens = &v
		hasConfig = true
	}
	if req.Temperature != nil {
		v := float32(*req.Temperature)
		cfg.Temperature = &v
		hasConfig = true
	}
	if req.TopP != nil {
		v := float32(*req.TopP)
		cfg.TopP = &v
		hasConfig = true
	}
	if req.Stop != nil && len(req.Stop.Values) > 0 {
		seqs := req.Stop.Values
		if len(seqs) > maxStopSequences {
			seqs = seqs[:maxStopSequences]
		}
		cfg.StopSequences = seqs
		hasConfig = true
	}

	if !hasConfig {
		return nil
	}
	return cfg
}

func buildToolConfig(req *api.ChatRequest) (*types.ToolConfiguration, error) {
	if req.ToolChoice != nil && req.ToolChoice.Mode == "none" {
		return nil, nil
	}

	tools := make([]types.Tool, 0, len(req.Tools))
	for _, tool := range req.Tools {
		name := tool.Function.Name
		var desc *string
		if tool.Function.Description != "" {
			desc = &tool.Function.Description
		}
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        &name,
			Description: desc,
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(tool.Function.Parameters)},
		}})
	}

	cfg := &types.ToolConfiguration{Tools: tools}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case "auto":
			cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
		case "required":
			cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		case "function":
			name := req.ToolChoice.FunctionName
			cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: &name}}
		default:
			return nil, gwerrors.WithParam(gwerrors.KindInvalidRequest, fmt.Sprintf("unsupported tool_choice %q", req.ToolChoice.Mode), "tool_choice")
		}
	}

	return cfg, nil
}
