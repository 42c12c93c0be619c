package consensus

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
)

// ChatClient is the part of the OpenAI client the reviewer uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIReviewer asks an OpenAI chat model for a review.
type OpenAIReviewer struct {
	client   ChatClient
	model    string
	maxBytes int
}

// NewOpenAIReviewer creates a reviewer with its own client. An empty
// baseURL uses the public API.
func NewOpenAIReviewer(apiKey, model, baseURL string, maxBytes int) *OpenAIReviewer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIReviewerWithClient(openai.NewClientWithConfig(cfg), model, maxBytes)
}

// NewOpenAIReviewerWithClient creates a reviewer over an existing client.
func NewOpenAIReviewerWithClient(client ChatClient, model string, maxBytes int) *OpenAIReviewer {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIReviewer{client: client, model: model, maxBytes: maxBytes}
}

func (r *OpenAIReviewer) Name() string { return "openai" }

// Review sends the payload in JSON mode.
func (r *OpenAIReviewer) Review(ctx context.Context, p Payload) (*Review, error) {
	msg, err := userMessage(p)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: msg},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "consensus: openai review")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Wrap(ErrInvalidReview, "consensus: openai returned no choices")
	}

	rev, err := parseReview(resp.Choices[0].Message.Content, r.maxBytes)
	if err != nil {
		return nil, eris.Wrap(err, "consensus: openai review")
	}
	rev.Reviewer = r.Name()
	return rev, nil
}
