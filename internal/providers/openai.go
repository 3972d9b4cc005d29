package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hazemksouri/parley/internal/completion"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIProvider implements completion.Provider by calling the OpenAI SDK
// directly. Also serves OpenAI-compatible endpoints via a base URL override.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI-backed provider.
func NewOpenAIProvider(apiKey, modelName, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, completion.NewError(completion.KindMissingAPIKey, "OpenAI API key not configured")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
	}, nil
}

// Chat implements completion.Provider.Chat.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []completion.ChatMessage, tools []completion.ToolSchema, opts completion.ChatOptions) (completion.ChatResult, error) {
	openaiMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case completion.RoleSystem:
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case completion.RoleUser:
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case completion.RoleAssistant:
			// The SDK may serialize an empty string as null, which the API
			// rejects for assistant messages carrying tool calls. A single
			// space is accepted and semantically equivalent.
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				content = " "
			}

			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}

			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
		case completion.RoleTool:
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    content,
			})
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: openaiMsgs,
	}

	var openaiTools []openai.Tool
	for _, ts := range tools {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return completion.ChatResult{}, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		openaiTools = append(openaiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	if len(openaiTools) > 0 {
		req.Tools = openaiTools
		// The model decides whether to invoke a tool.
		req.ToolChoice = "auto"
	}

	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return completion.ChatResult{}, mapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return completion.ChatResult{}, completion.NewError(completion.KindEmptyResponse, "provider returned no choices")
	}

	choice := resp.Choices[0]

	var toolCalls []completion.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, completion.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = completion.FinishReasonToolCalls
	} else if choice.FinishReason == openai.FinishReasonLength {
		finishReason = "length"
	} else if choice.FinishReason == openai.FinishReasonContentFilter {
		finishReason = "content_filter"
	}

	return completion.ChatResult{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}, nil
}

// mapOpenAIError converts SDK errors into the completion taxonomy. A 400
// whose body reports a malformed tool-call generation gets its own kind so
// the client can apply the single tools-less retry.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusBadRequest && completion.IsMalformedToolCallBody(apiErr.Message) {
			return &completion.Error{
				Kind:    completion.KindMalformedToolCall,
				Status:  http.StatusBadRequest,
				Message: apiErr.Message,
				Err:     err,
			}
		}
		httpErr := completion.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message)
		httpErr.Err = err
		return httpErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		httpErr := completion.NewHTTPError(reqErr.HTTPStatusCode, reqErr.Error())
		httpErr.Err = err
		return httpErr
	}

	return completion.WrapNetworkError(err)
}
