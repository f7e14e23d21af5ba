package adapter

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/zen-systems/switchboard/pkg/artifact"
)

// GradientBaseURL is the DigitalOcean serverless inference endpoint. It hosts
// open-weight models behind an OpenAI-compatible API.
const GradientBaseURL = "https://inference.do-ai.run/v1"

// GradientAdapter calls models hosted on DigitalOcean's gradient inference.
type GradientAdapter struct {
	client *goopenai.Client
}

// NewGradientAdapter creates a gradient adapter. An empty baseURL selects the
// public endpoint.
func NewGradientAdapter(apiKey, baseURL string) (*GradientAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gradient model access key is required")
	}
	if baseURL == "" {
		baseURL = GradientBaseURL
	}

	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &GradientAdapter{client: goopenai.NewClientWithConfig(cfg)}, nil
}

// Name returns the adapter identifier.
func (a *GradientAdapter) Name() string {
	return "gradient"
}

// Generate sends the conversation and returns the response as an artifact.
func (a *GradientAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxOutput,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, withStatus(fmt.Errorf("gradient API error: %w", err), apiErr.HTTPStatusCode)
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) {
			return nil, withStatus(fmt.Errorf("gradient request error: %w", err), reqErr.HTTPStatusCode)
		}
		return nil, fmt.Errorf("gradient API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("gradient returned no choices")
	}

	return &Response{
		Artifact: artifact.New(resp.Choices[0].Message.Content, a.Name(), req.Model, Prompt(req.Messages)),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
