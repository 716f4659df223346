package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/claw/llm"
)

const (
	// DefaultBaseURL points at OpenRouter's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "google/gemini-2.0-flash-exp:free"
)

// Rate limit responses through OpenRouter rarely carry a usable Retry-After.
const defaultRetryAfter = 20 * time.Second

// Client implements llm.Client for OpenAI-compatible chat completion APIs.
type Client struct {
	client *openai.Client
	model  string
}

var _ llm.Client = (*Client)(nil)

// NewClient builds a client. Empty baseURL means OpenRouter; empty model means DefaultModel.
func NewClient(apiKey, baseURL, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Synchronous implements llm.Client.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	msgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.System != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.ErrNoChoices
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	stopReason := "stop"
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		stopReason = "max_tokens"
	case openai.FinishReasonToolCalls:
		stopReason = "tool_calls"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason,
	}, nil
}

// convertOpenAIError maps go-openai errors onto llm.Error.
func convertOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	message := err.Error()
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, message = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return llm.NewNetworkError("chat completion request failed", err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(fmt.Sprintf("rate limited: %s", message), &retryAfter, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &llm.Error{
			Type:        llm.ErrorTypeAuth,
			Message:     fmt.Sprintf("authentication failed: %s", message),
			StatusCode:  status,
			ProviderErr: err,
		}
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusRequestEntityTooLarge:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("invalid request: %s", message),
			StatusCode:  status,
			ProviderErr: err,
		}
	case status >= 500:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("provider error: %s", message),
			Retryable:   true,
			StatusCode:  status,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("chat completion error: %s", message),
			StatusCode:  status,
			ProviderErr: err,
		}
	}
}
