package api

import (
	"encoding/json"
	"fmt"
)

// ChatRequest is the OpenAI Chat Completions request shape this gateway
// accepts before translating it to an upstream Converse-style call.
type ChatRequest struct {
	Model       string    `json:"model" binding:"required"`
	Messages    []Message `json:"messages" binding:"required,min=1,dive"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        *Stop     `json:"stop,omitempty"`

	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	Thinking *ThinkingConfig `json:"thinking,omitempty"`
}

// ThinkingConfig is the recognized extra option enabling extended
// thinking on models that support it.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

// Message is one entry of the ordered conversation. Role is one of
// system, user, assistant, tool.
type Message struct {
	Role       string     `json:"role" binding:"required,oneof=system user assistant tool"`
	Content    Content    `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Content handles the union type: a plain string, or an ordered
// sequence of typed content parts (text / image_url / tool_result).
type Content struct {
	Text  string
	Parts []ContentPart
	// IsParts distinguishes an explicit empty-string content ("") from
	// an explicit empty-array content ([]), both of which marshal to
	// the zero value otherwise.
	IsParts bool
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		c.IsParts = true
		return json.Unmarshal(data, &c.Parts)
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts || c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// ContentPart is one element of a multi-part Content value.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Stop handles the union type: a single string or a sequence of strings.
type Stop struct {
	Values []string
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &s.Values)
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	s.Values = []string{str}
	return nil
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if len(s.Values) == 1 {
		return json.Marshal(s.Values[0])
	}
	return json.Marshal(s.Values)
}

// Tool describes one callable function offered to the model.
type Tool struct {
	Type     string   `json:"type"` // "function"
	Function Function `json:"function"`
}

type Function struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolChoice handles the union type: the bare strings "auto" | "none" |
// "required", or an object pinning one named function.
type ToolChoice struct {
	Mode         string // "auto" | "none" | "required" | "function"
	FunctionName string
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t.Mode = s
		return nil
	}

	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Mode = "function"
	t.FunctionName = obj.Function.Name
	return nil
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Mode == "function" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.FunctionName},
		})
	}
	return json.Marshal(t.Mode)
}
