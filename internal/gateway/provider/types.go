package provider

import (
	"encoding/json"
	"fmt"
)

// 中文说明：
// OpenRouter /v1/chat/completions 的请求/响应载体，
// 覆盖工具调用、结构化输出与 reasoning 扩展字段。

type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParsedArguments 把工具调用参数反序列化为通用 map；坏参数返回错误而不是 panic。
func (t ToolCall) ParsedArguments() (map[string]any, error) {
	out := map[string]any{}
	if t.Function.Arguments == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(t.Function.Arguments), &out); err != nil {
		return nil, fmt.Errorf("tool call %s has invalid arguments: %w", t.Function.Name, err)
	}
	return out, nil
}

type Tool struct {
	Type     string   `json:"type"`
	Function ToolSpec `json:"function"`
}

type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *JSONSchemaSpec `json:"json_schema,omitempty"`
}

type JSONSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type Reasoning struct {
	Enabled bool   `json:"enabled,omitempty"`
	Effort  string `json:"effort,omitempty"`
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	Reasoning      *Reasoning      `json:"reasoning,omitempty"`
}

type ChatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// HTTPError 保留完整的状态码与响应体，供上层识别能力降级类错误
// （如 422 工具不支持、400 response_format 不支持）。
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider status=%d: %s", e.Status, e.Body)
}
