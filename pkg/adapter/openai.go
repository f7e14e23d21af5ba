package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zen-systems/switchboard/pkg/artifact"
)

const perplexityBaseURL = "https://api.perplexity.ai/"

// OpenAIAdapter implements the Adapter interface for OpenAI chat models and
// for OpenAI-compatible endpoints such as Perplexity's sonar models.
type OpenAIAdapter struct {
	name   string
	client openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	return newOpenAICompatible("openai", apiKey, opts...)
}

// NewPerplexityAdapter creates an adapter for Perplexity's search-augmented
// sonar models, which speak the OpenAI chat protocol.
func NewPerplexityAdapter(apiKey string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	opts = append([]option.RequestOption{option.WithBaseURL(perplexityBaseURL)}, opts...)
	return newOpenAICompatible("perplexity", apiKey, opts...)
}

func newOpenAICompatible(name, apiKey string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}

	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIAdapter{name: name, client: client}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Generate sends the conversation and returns the response as an artifact.
func (a *OpenAIAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(req.Model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.MaxOutput)),
		Temperature:         openai.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, withStatus(fmt.Errorf("%s API error: %w", a.name, err), apiErr.StatusCode)
		}
		return nil, fmt.Errorf("%s API error: %w", a.name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", a.name)
	}

	content := resp.Choices[0].Message.Content
	return &Response{
		Artifact: artifact.New(content, a.Name(), req.Model, Prompt(req.Messages)),
		Usage: &Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
