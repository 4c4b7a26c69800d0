package integrations

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkadian-io/flume/pkg/api"
)

const defaultChatModel = openai.GPT4oMini

// OpenAI is the caller behind the "openai" integration. It wraps the
// chat-completion and model-listing endpoints.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates a caller authenticated with the given API key.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey)}
}

// NewOpenAIWithBaseURL points the caller at an alternate endpoint, for
// proxies and local stand-ins.
func NewOpenAIWithBaseURL(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

// DescriptorOpenAI is the catalog entry for this caller.
func DescriptorOpenAI() Descriptor {
	return Descriptor{
		ID:          "openai",
		DisplayName: "OpenAI",
		Category:    "ai",
		Description: "Chat completions and model listing via the OpenAI API.",
		Operations:  []string{"chat.complete", "models.list"},
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Call(ctx context.Context, operation string, parameters api.Values) (api.Values, error) {
	switch operation {
	case "chat.complete":
		return o.chatComplete(ctx, parameters)
	case "models.list":
		return o.listModels(ctx)
	default:
		return nil, fmt.Errorf("openai: unsupported operation %q", operation)
	}
}

func (o *OpenAI) chatComplete(ctx context.Context, parameters api.Values) (api.Values, error) {
	prompt, _ := parameters["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("openai: prompt parameter is required")
	}
	model, _ := parameters["model"].(string)
	if model == "" {
		model = defaultChatModel
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if system, _ := parameters["system"].(string); system != "" {
		req.Messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
		}, req.Messages...)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}
	return api.Values{
		"content":      resp.Choices[0].Message.Content,
		"model":        resp.Model,
		"finishReason": string(resp.Choices[0].FinishReason),
		"totalTokens":  resp.Usage.TotalTokens,
	}, nil
}

func (o *OpenAI) listModels(ctx context.Context) (api.Values, error) {
	resp, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return api.Values{"models": ids}, nil
}
