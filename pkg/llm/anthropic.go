package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicBackend struct {
	client anthropic.Client
}

func NewAnthropicBackend(baseURL, apiKey string, timeout time.Duration) *AnthropicBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    toAnthropicMessages(req.Messages),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        req.Tool.Name,
					Description: anthropic.String(req.Tool.Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: req.Tool.Schema.Properties,
					},
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Tool.Name},
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	text := ""
	for _, block := range resp.Content {
		switch block := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			input, err := json.Marshal(block.Input)
			if err != nil {
				return "", fmt.Errorf("marshal tool input: %w", err)
			}
			return string(input), nil
		case anthropic.TextBlock:
			text += block.Text
		}
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Base64()))
		}
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}

		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}
