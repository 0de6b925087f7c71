package translate

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() int64 { return 1_700_000_000 }

func TestResponseTranslate_SimpleText(t *testing.T) {
	tr := NewResponseTranslator(fixedNow)
	input, output := int32(3), int32(2)
	out := &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Hello"}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage:      &types.TokenUsage{InputTokens: &input, OutputTokens: &output},
	}

	resp, err := tr.Translate(out, "claude-sonnet-4-5-20250929")
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Message.Content)
	assert.Equal(t, "Hello", *resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
}

func TestResponseTranslate_ToolUse(t *testing.T) {
	tr := NewResponseTranslator(fixedNow)
	toolUseID := "tu_1"
	name := "get_weather"
	out := &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: &toolUseID,
				Name:      &name,
				Input:     document.NewLazyDocument(map[string]any{"location": "Tokyo"}),
			}}},
		}},
		StopReason: types.StopReasonToolUse,
	}

	resp, err := tr.Translate(out, "m")
	require.NoError(t, err)
	assert.Nil(t, resp.Choices[0].Message.Content)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.Choices[0].Message.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.Choices[0].Message.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"location":"Tokyo"}`, resp.Choices[0].Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
}

func TestMapFinishReason(t *testing.T) {
	cases := map[types.StopReason]string{
		types.StopReasonEndTurn:         "stop",
		types.StopReasonStopSequence:    "stop",
		types.StopReasonMaxTokens:       "length",
		types.StopReasonToolUse:         "tool_calls",
		types.StopReasonContentFiltered: "content_filter",
	}
	for reason, want := range cases {
		assert.Equal(t, want, mapFinishReason(reason))
	}
}
