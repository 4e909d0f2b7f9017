// Package providers contains concrete llm.Provider adapters for the
// model APIs the gateway can drive.
package providers

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nusantara-labs/oracle/internal/llm"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// Anthropic USD prices per million tokens, used to accrue cascade cost.
// Unknown models fall back to the sonnet rate.
var anthropicPricing = map[string]struct{ in, out float64 }{
	"claude-haiku-3-5":  {0.80, 4.00},
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-opus-4-1":   {15.00, 75.00},
}

// AnthropicProvider implements llm.Provider over the Anthropic
// Messages API. Safe for concurrent use.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a provider authenticated with apiKey.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Send performs one non-streaming completion round trip.
func (p *AnthropicProvider) Send(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  convertAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := models.TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	usage.CostUSD = anthropicCost(req.Model, usage)

	return &llm.ChatResponse{
		Text:  text.String(),
		Raw:   msg,
		Usage: usage,
	}, nil
}

func convertAnthropicMessages(messages []llm.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func anthropicCost(model string, usage models.TokenUsage) float64 {
	price, ok := anthropicPricing[model]
	if !ok {
		for known, p := range anthropicPricing {
			if strings.HasPrefix(model, known) {
				price, ok = p, true
				break
			}
		}
	}
	if !ok {
		price = anthropicPricing["claude-sonnet-4-5"]
	}
	return (float64(usage.PromptTokens)*price.in + float64(usage.CompletionTokens)*price.out) / 1e6
}
