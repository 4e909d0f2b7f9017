package providers

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nusantara-labs/oracle/internal/llm"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// OpenAI USD prices per million tokens. Unknown models fall back to
// the gpt-4o rate.
var openaiPricing = map[string]struct{ in, out float64 }{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
	"gpt-4.1":     {2.00, 8.00},
}

// OpenAIProvider implements llm.Provider over the OpenAI chat
// completions API. Safe for concurrent use.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider authenticated with apiKey.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates a provider against a compatible
// endpoint, e.g. a local vLLM or proxy deployment.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Send performs one non-streaming completion round trip.
func (p *OpenAIProvider) Send(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}

	usage := models.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	usage.CostUSD = openaiCost(req.Model, usage)

	return &llm.ChatResponse{
		Text:  resp.Choices[0].Message.Content,
		Raw:   resp,
		Usage: usage,
	}, nil
}

func openaiCost(model string, usage models.TokenUsage) float64 {
	price, ok := openaiPricing[model]
	if !ok {
		for known, p := range openaiPricing {
			if strings.HasPrefix(model, known) {
				price, ok = p, true
				break
			}
		}
	}
	if !ok {
		price = openaiPricing["gpt-4o"]
	}
	return (float64(usage.PromptTokens)*price.in + float64(usage.CompletionTokens)*price.out) / 1e6
}
