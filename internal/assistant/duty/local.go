package duty

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	llama "github.com/go-skynet/go-llama.cpp"

	"github.com/lumen-assistant/core/internal/assistant/model"
	errx "github.com/lumen-assistant/core/internal/core/error"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// LlamaProvider opens persistent llama.cpp sessions. Each duty gets its own
// session so routing and extraction contexts never bleed into each other.
type LlamaProvider struct {
	cfg model.ProviderConfig
}

func NewLlamaProvider(cfg model.ProviderConfig) *LlamaProvider {
	return &LlamaProvider{cfg: cfg}
}

func (p *LlamaProvider) OpenSession(ctx context.Context, spec Spec) (Session, error) {
	if p.cfg.ModelPath == "" {
		return nil, fmt.Errorf("local provider selected but LOCAL_MODEL_PATH is empty")
	}
	m, err := llama.New(p.cfg.ModelPath,
		llama.SetContext(p.cfg.ContextSize),
		llama.SetGPULayers(p.cfg.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", p.cfg.ModelPath, err)
	}
	logx.Debug().Str("model_path", p.cfg.ModelPath).Msg("opened local duty session")
	return &llamaSession{model: m, spec: spec}, nil
}

var _ SessionOpener = (*LlamaProvider)(nil)

// llamaSession is one persistent local session. The owning duty serializes
// calls; the session itself performs the shape check so misuse fails fast
// even when reached directly.
type llamaSession struct {
	model *llama.LLama
	spec  Spec
}

func (s *llamaSession) Shape() SessionShape { return s.spec.Shape }

func (s *llamaSession) GenerateChat(ctx context.Context, system string, history []*schema.Message) (string, Usage, error) {
	if s.spec.Shape != ShapeChat {
		return "", Usage{}, errx.WrapContract(fmt.Errorf("%w: history array supplied to a completion session", errx.ErrSessionShape))
	}
	return s.predict(ctx, renderChatPrompt(system, history))
}

func (s *llamaSession) GenerateCompletion(ctx context.Context, system, prompt string) (string, Usage, error) {
	if s.spec.Shape != ShapeCompletion {
		return "", Usage{}, errx.WrapContract(fmt.Errorf("%w: single prompt supplied to a chat session", errx.ErrSessionShape))
	}
	return s.predict(ctx, system+"\n\n"+prompt+"\n")
}

func (s *llamaSession) predict(ctx context.Context, prompt string) (string, Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", Usage{}, err
	}
	// The whole token budget is handed to the backend; thought tokens are
	// consumed out of the same window before the answer.
	out, err := s.model.Predict(prompt,
		llama.SetTemperature(s.spec.Temperature),
		llama.SetTopP(s.spec.TopP),
		llama.SetTokens(s.spec.ThoughtBudget+s.spec.MaxTokens),
	)
	if err != nil {
		return "", Usage{}, fmt.Errorf("predict: %w", err)
	}
	out = strings.TrimSpace(out)
	return out, Usage{
		InputTokens:  estimateTokens(prompt),
		OutputTokens: estimateTokens(out),
	}, nil
}

func (s *llamaSession) Close() error {
	s.model.Free()
	return nil
}

// renderChatPrompt flattens a history array into the single-window prompt
// format the local backend consumes.
func renderChatPrompt(system string, history []*schema.Message) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n<conversation>\n")
	for _, m := range history {
		if m == nil || m.Content == "" {
			continue
		}
		switch m.Role {
		case schema.User:
			b.WriteString("user: " + m.Content + "\n")
		case schema.Assistant:
			b.WriteString("assistant: " + m.Content + "\n")
		}
	}
	b.WriteString("</conversation>\nassistant: ")
	return b.String()
}

// estimateTokens approximates usage for a backend that does not report it.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}
