package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any network call when the provider
// credential is absent. Callers surface it as service-unavailable.
var ErrMissingAPIKey = errors.New("llm api key not configured")

// ProviderError carries a provider failure: a non-2xx status or a response
// body that did not match the expected shape. Raw keeps the provider payload
// for diagnostics.
type ProviderError struct {
	Status  int
	Message string
	Raw     json.RawMessage
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm provider error: %s", e.Message)
	}
	return fmt.Sprintf("llm provider error: status %d", e.Status)
}

// Message is one entry of a chat-completion conversation, in the OpenAI wire
// shape. ToolCalls is set on assistant messages requesting a function
// invocation; ToolCallID links a tool-role message back to that request.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is the model's request to invoke a declared function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares an invocable function to the model.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  Schema `json:"parameters"`
}

type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Result is a completed round-trip: free text, a tool-call request, or both.
type Result struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatCompleter performs one chat-completion round-trip with the provider.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []Message, tools []Tool) (Result, error)
}
