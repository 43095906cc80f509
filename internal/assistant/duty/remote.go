package duty

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// GeminiProvider is the stateless remote binding: one request per call, no
// session object and no grammar optimization.
type GeminiProvider struct {
	model     *gemini.ChatModel
	modelName string
}

// NewGeminiProvider builds the shared chat model used by every remote duty.
// Per-duty temperature and token limits are applied per call.
func NewGeminiProvider(ctx context.Context, cfg model.ProviderConfig, duties model.DutyConfig) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &duties.Temperature,
		MaxTokens:   &duties.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(duties.ThoughtBudget)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("error creating duty model")
		return nil, fmt.Errorf("error creating duty model: %w", err)
	}

	return &GeminiProvider{model: chatModel, modelName: cfg.Model}, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, Usage, error) {
	messages := []*schema.Message{schema.SystemMessage(req.System)}
	if len(req.History) > 0 {
		messages = append(messages, req.History...)
	} else {
		messages = append(messages, schema.UserMessage(req.Prompt))
	}

	out, err := p.model.Generate(ctx, messages,
		einomodel.WithTemperature(req.Temperature),
		einomodel.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generate: %w", err)
	}
	if out == nil {
		return "", Usage{}, fmt.Errorf("generate: empty response")
	}

	var usage Usage
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		usage.InputTokens = out.ResponseMeta.Usage.PromptTokens
		usage.OutputTokens = out.ResponseMeta.Usage.CompletionTokens
		_, _, totalCost := model.ComputeCost(usage.InputTokens, usage.OutputTokens, model.ResolvePricing(p.modelName))
		logx.Debug().
			Str("model", p.modelName).
			Int("prompt_tokens", usage.InputTokens).
			Int("completion_tokens", usage.OutputTokens).
			Float64("total_cost_usd", totalCost).
			Msg("remote duty usage")
	}
	return out.Content, usage, nil
}

var _ Completer = (*GeminiProvider)(nil)
