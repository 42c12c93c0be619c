package consensus

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/pkg/anthropic"
)

// AnthropicReviewer asks a Claude model for a review.
type AnthropicReviewer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxBytes  int
}

// NewAnthropicReviewer creates a reviewer over client.
func NewAnthropicReviewer(client anthropic.Client, model string, maxTokens int64, maxBytes int) *AnthropicReviewer {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicReviewer{client: client, model: model, maxTokens: maxTokens, maxBytes: maxBytes}
}

func (r *AnthropicReviewer) Name() string { return "anthropic" }

// Review sends the payload with the cached reviewer instructions.
func (r *AnthropicReviewer) Review(ctx context.Context, p Payload) (*Review, error) {
	msg, err := userMessage(p)
	if err != nil {
		return nil, err
	}
	temp := 0.0
	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: msg}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "consensus: anthropic review")
	}
	resp.Usage.LogCost(r.model, p.JobID)

	rev, err := parseReview(resp.Text(), r.maxBytes)
	if err != nil {
		return nil, eris.Wrap(err, "consensus: anthropic review")
	}
	rev.Reviewer = r.Name()
	return rev, nil
}
