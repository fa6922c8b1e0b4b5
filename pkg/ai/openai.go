package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
)

// OpenAIClient calls any OpenAI-compatible /v1/chat/completions endpoint,
// including tool/function declarations.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewOpenAIClient builds a ChatCompleter for an OpenAI-compatible provider.
// baseURL should include the /v1 prefix; empty selects the hosted endpoint.
// apiKey may be empty: the client then refuses every call with
// ErrMissingAPIKey instead of attempting the network.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	return &OpenAIClient{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChatCompletion implements ChatCompleter against the chat completions API.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []Message, tools []Tool) (Result, error) {
	if c.apiKey == "" {
		return Result{}, ErrMissingAPIKey
	}
	if len(messages) == 0 {
		return Result{}, fmt.Errorf("chat completion requires messages")
	}

	reqBody := oaiChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
		reqBody.ToolChoice = "auto"
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("llm read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp oaiErrorResponse
		_ = json.Unmarshal(raw, &errResp)
		return Result{}, &ProviderError{
			Status:  resp.StatusCode,
			Message: errResp.Error.Message,
			Raw:     json.RawMessage(raw),
		}
	}

	var chatResp oaiChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return Result{}, &ProviderError{
			Status:  resp.StatusCode,
			Message: "malformed provider response",
			Raw:     json.RawMessage(raw),
		}
	}
	if len(chatResp.Choices) == 0 {
		return Result{}, &ProviderError{
			Status:  resp.StatusCode,
			Message: "empty choices in provider response",
			Raw:     json.RawMessage(raw),
		}
	}
	msg := chatResp.Choices[0].Message
	return Result{
		Content:   strings.TrimSpace(msg.Content),
		ToolCalls: msg.ToolCalls,
	}, nil
}

// OpenAI-compatible request/response types.

type oaiChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type oaiChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiChatMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
