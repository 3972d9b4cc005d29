package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazemksouri/parley/internal/completion"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider implements completion.Provider by calling the Anthropic
// SDK directly.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic-backed provider.
func NewAnthropicProvider(apiKey, modelName string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, completion.NewError(completion.KindMissingAPIKey, "Anthropic API key not configured")
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey),
		model:  modelName,
	}, nil
}

// Chat implements completion.Provider.Chat.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []completion.ChatMessage, tools []completion.ToolSchema, opts completion.ChatOptions) (completion.ChatResult, error) {
	var systemParts []anthropic.MessageSystemPart
	var anthropicMsgs []anthropic.Message

	for _, msg := range messages {
		switch msg.Role {
		case completion.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{
				Type: "text",
				Text: msg.Content,
			})
		case completion.RoleUser:
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		case completion.RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(
					tc.ID,
					tc.Name,
					json.RawMessage(tc.Arguments),
				))
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: content,
			})
		case completion.RoleTool:
			// Anthropic models tool results as user messages.
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewToolResultMessageContent(msg.ToolCallID, content, false),
				},
			})
		}
	}

	var toolDefs []anthropic.ToolDefinition
	for _, ts := range tools {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return completion.ChatResult{}, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		toolDefs = append(toolDefs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: schemaObj,
		})
	}

	maxTokens := 1024
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		Messages:  anthropicMsgs,
		MaxTokens: maxTokens,
	}
	if opts.Temperature > 0 {
		temperature := opts.Temperature
		req.Temperature = &temperature
	}
	if len(systemParts) > 0 {
		req.MultiSystem = systemParts
	}
	if len(toolDefs) > 0 {
		req.Tools = toolDefs
	}

	resp, err := p.client.CreateMessages(ctx, req)
	if err != nil {
		return completion.ChatResult{}, mapAnthropicError(err)
	}

	var textContent string
	var toolCalls []completion.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				textContent += *block.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse != nil {
				toolCalls = append(toolCalls, completion.ToolCall{
					ID:        block.MessageContentToolUse.ID,
					Name:      block.MessageContentToolUse.Name,
					Arguments: string(block.MessageContentToolUse.Input),
				})
			}
		}
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = completion.FinishReasonToolCalls
	} else if resp.StopReason == anthropic.MessagesStopReasonMaxTokens {
		finishReason = "length"
	}

	return completion.ChatResult{
		Content:      textContent,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}, nil
}

// mapAnthropicError converts SDK errors into the completion taxonomy.
func mapAnthropicError(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		httpErr := completion.NewHTTPError(reqErr.StatusCode, reqErr.Error())
		httpErr.Err = err
		return httpErr
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		var kind completion.ErrorKind
		switch {
		case apiErr.IsAuthenticationErr() || apiErr.IsPermissionErr():
			kind = completion.KindUnauthorized
		case apiErr.IsRateLimitErr():
			kind = completion.KindRateLimited
		case apiErr.IsOverloadedErr():
			kind = completion.KindServiceUnavailable
		case apiErr.IsApiErr():
			kind = completion.KindServerError
		default:
			kind = completion.KindGenericHTTP
		}
		return &completion.Error{Kind: kind, Message: apiErr.Message, Err: err}
	}

	return completion.WrapNetworkError(err)
}
