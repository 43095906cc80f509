package duty

import (
	"context"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/lumen-assistant/core/internal/assistant/duty/prompts"
	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// AllTypes enumerates every duty the registry manages.
var AllTypes = []Type{
	SkillRouting,
	ActionRouting,
	SlotFilling,
	ArgumentExtraction,
	CustomNER,
	Paraphrase,
}

// Registry owns exactly one duty instance per type. Callers obtain duties
// here and never construct their own, so session reuse stays explicit.
type Registry struct {
	cfg        model.DutyConfig
	opener     SessionOpener
	completer  Completer
	skillNames []string

	mu     sync.Mutex
	duties map[Type]*Duty
}

// NewRegistry binds every duty to the process-wide provider. Exactly one of
// opener/completer is non-nil, selected by the provider configuration.
func NewRegistry(cfg model.DutyConfig, opener SessionOpener, completer Completer, skillNames []string) *Registry {
	return &Registry{
		cfg:        cfg,
		opener:     opener,
		completer:  completer,
		skillNames: append([]string(nil), skillNames...),
		duties:     make(map[Type]*Duty),
	}
}

// Get returns the singleton duty for a type, creating it on first use.
// Sessions are still opened lazily on the first execution.
func (r *Registry) Get(typ Type) *Duty {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.duties[typ]; ok {
		return d
	}
	promptData := map[string]string{}
	if typ == SkillRouting {
		promptData["skill_list"] = strings.Join(r.skillNames, ", ")
	}
	d := New(typ, specFor(typ, r.cfg, promptData), r.opener, r.completer)
	r.duties[typ] = d
	return d
}

// WarmUp opens the local sessions of all duties in parallel so the first
// user turn does not pay the model-loading cost. Remote bindings have
// nothing to warm.
func (r *Registry) WarmUp(ctx context.Context) error {
	if r.opener == nil {
		return nil
	}
	p := pool.New().WithErrors().WithContext(ctx)
	for _, typ := range AllTypes {
		d := r.Get(typ)
		p.Go(func(ctx context.Context) error {
			return d.ForceReinit(ctx)
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	logx.Info().Int("duties", len(AllTypes)).Msg("duty sessions warmed up")
	return nil
}

// ForceReinit disposes and recreates the session of one duty.
func (r *Registry) ForceReinit(ctx context.Context, typ Type) error {
	return r.Get(typ).ForceReinit(ctx)
}

// RouteSkill resolves an utterance to one of the known skill names or the
// sentinel None. The output contract lives in the prompt, but the result is
// still validated against the known set: anything else collapses to None.
func (r *Registry) RouteSkill(ctx context.Context, utterance string) (string, error) {
	res, err := r.Get(SkillRouting).Execute(ctx, Input{Prompt: utterance})
	if err != nil {
		return prompts.SentinelNone, err
	}
	if res == nil {
		// Duty unavailable this turn; treat as no skill matched.
		return prompts.SentinelNone, nil
	}
	name := strings.TrimSpace(res.Output)
	for _, s := range r.skillNames {
		if s == name {
			return name, nil
		}
	}
	if name != prompts.SentinelNone {
		logx.Debug().Str("output", name).Msg("skill router produced an unknown name; treating as None")
	}
	return prompts.SentinelNone, nil
}
