package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend 兼容 OpenAI 协议的端点（OpenAI、OpenRouter 等）
type OpenAIBackend struct {
	client *openai.Client
}

func NewOpenAIBackend(baseURL, apiKey string, timeout time.Duration) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        req.Tool.Name,
					Description: req.Tool.Description,
					Parameters:  req.Tool.Schema,
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type: openai.ToolTypeFunction,
			Function: openai.ToolFunction{
				Name: req.Tool.Name,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return msg.ToolCalls[0].Function.Arguments, nil
	}
	// 部分模型忽略 tool_choice，直接输出 JSON 文本，交给校验判断
	return msg.Content, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if m.Role == RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		})
	}
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURL(),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}
