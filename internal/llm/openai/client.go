// Package openai implements llm.Provider over the OpenAI-compatible
// chat completions protocol. Works with any endpoint that speaks it.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/strandworks/strand/internal/cost"
	"github.com/strandworks/strand/internal/llm"
	openailib "github.com/sashabaranov/go-openai"
)

// Client implements llm.Provider using the OpenAI-compatible protocol.
type Client struct {
	client *openailib.Client
	config *Config

	totalInputTokens      atomic.Int64
	totalCompletionTokens atomic.Int64

	costTracker *cost.Tracker // nil = cost logging disabled
}

var _ llm.Provider = (*Client)(nil)

// NewClient creates a new OpenAI-compatible client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Client{
		client: openailib.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewClientFromEnv creates a client using environment variables.
func NewClientFromEnv() (*Client, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	return NewClient(config)
}

// GetConfig returns the client's configuration.
func (c *Client) GetConfig() *Config {
	return c.config
}

// SetCostTracker attaches a cost tracker that receives one entry per API call.
func (c *Client) SetCostTracker(t *cost.Tracker) {
	c.costTracker = t
}

// Ask sends messages to the LLM and returns the text response.
func (c *Client) Ask(ctx context.Context, messages []llm.Message, systemMsgs []llm.Message) (string, error) {
	if len(messages) == 0 && len(systemMsgs) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	req := c.baseRequest(systemMsgs, messages)

	resp, err := c.doWithRetries(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from LLM")
	}
	return resp.Choices[0].Message.Content, nil
}

// AskWithTools sends messages with tool definitions for function calling.
// The returned assistant message may carry tool calls.
func (c *Client) AskWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, systemMsgs []llm.Message, toolChoice string) (llm.Message, error) {
	if len(messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}

	req := c.baseRequest(systemMsgs, messages)

	req.Tools = make([]openailib.Tool, len(tools))
	for i, t := range tools {
		req.Tools[i] = openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		}
	}
	switch toolChoice {
	case llm.ToolChoiceNone, llm.ToolChoiceRequired:
		req.ToolChoice = toolChoice
	default:
		req.ToolChoice = llm.ToolChoiceAuto
	}

	resp, err := c.doWithRetries(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("no choices returned from LLM")
	}

	choice := resp.Choices[0].Message
	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: choice.Content,
	}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg, nil
}

// CountMessageTokens estimates the token footprint of a message list.
func (c *Client) CountMessageTokens(messages []llm.Message) int {
	return llm.EstimateMessageTokens(messages)
}

// TotalInputTokens returns the cumulative prompt tokens consumed.
func (c *Client) TotalInputTokens() int64 { return c.totalInputTokens.Load() }

// TotalCompletionTokens returns the cumulative completion tokens generated.
func (c *Client) TotalCompletionTokens() int64 { return c.totalCompletionTokens.Load() }

// baseRequest converts messages to the wire format and applies model settings.
func (c *Client) baseRequest(systemMsgs, messages []llm.Message) openailib.ChatCompletionRequest {
	wire := make([]openailib.ChatCompletionMessage, 0, len(systemMsgs)+len(messages))
	for _, m := range systemMsgs {
		wire = append(wire, toWireMessage(m))
	}
	for _, m := range messages {
		wire = append(wire, toWireMessage(m))
	}

	req := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: wire,
	}
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	return req
}

// toWireMessage converts an llm.Message to the chat completions format,
// carrying tool calls, tool correlation IDs, and inline images.
func toWireMessage(m llm.Message) openailib.ChatCompletionMessage {
	wire := openailib.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		wire.ToolCalls = append(wire.ToolCalls, openailib.ToolCall{
			ID:   tc.ID,
			Type: openailib.ToolTypeFunction,
			Function: openailib.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	if m.Base64Image != "" && m.Role == llm.RoleUser {
		wire.Content = ""
		wire.MultiContent = []openailib.ChatMessagePart{
			{Type: openailib.ChatMessagePartTypeText, Text: m.Content},
			{
				Type: openailib.ChatMessagePartTypeImageURL,
				ImageURL: &openailib.ChatMessageImageURL{
					URL: "data:image/png;base64," + m.Base64Image,
				},
			},
		}
	}
	return wire
}

// doWithRetries executes the request with simple linear-backoff retries
// and records token usage on success.
func (c *Client) doWithRetries(ctx context.Context, req openailib.ChatCompletionRequest) (openailib.ChatCompletionResponse, error) {
	var resp openailib.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			break
		}
		if attempt < c.config.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[LLM] Retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return openailib.ChatCompletionResponse{}, ctx.Err()
			}
		}
	}

	if lastErr != nil {
		return openailib.ChatCompletionResponse{}, fmt.Errorf("LLM call failed after %d retries: %w", c.config.MaxRetries, lastErr)
	}

	c.totalInputTokens.Add(int64(resp.Usage.PromptTokens))
	c.totalCompletionTokens.Add(int64(resp.Usage.CompletionTokens))
	if c.costTracker != nil {
		c.costTracker.LogCall(c.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, nil
}
