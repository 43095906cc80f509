package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/lumen-assistant/core/internal/assistant/answer"
	"github.com/lumen-assistant/core/internal/assistant/conversation"
	"github.com/lumen-assistant/core/internal/assistant/duty"
	"github.com/lumen-assistant/core/internal/assistant/duty/prompts"
	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// NotUnderstoodKey is the global answer key emitted when no skill or action
// matches an utterance.
const NotUnderstoodKey = "not_understood"

// API is the surface skill action code gets to talk back to the core.
type API interface {
	// Answer resolves a key and emits it. Returns the message id.
	Answer(ctx context.Context, key string, data map[string]string, replaceMessageID string) (string, error)

	// EmitWidget caches a widget payload and emits it, optionally with an
	// accompanying answer key.
	EmitWidget(ctx context.Context, w *model.Widget, key string, data map[string]string) (string, error)
}

// ActionRunner is the custom code behind one logic action.
type ActionRunner func(ctx context.Context, params model.ActionParams, api API) error

// Dispatcher routes one resolved skill+action to the answer resolver or to
// custom action code, driving the context accumulator in the fixed
// skill → action → arguments order. One dispatcher serves one conversation;
// callers serialize turns.
type Dispatcher struct {
	conversationID string
	lang           string

	state    *conversation.State
	configs  conversation.ConfigStore
	registry *duty.Registry
	emitter  *answer.Emitter
	widgets  model.WidgetStore
	history  model.ContextRepository

	global      map[string]model.AnswerSet
	runners     map[string]ActionRunner
	nluMaxTurns int
}

// Config wires the dispatcher's collaborators. History and Widgets are
// optional; a nil history skips persistence.
type Config struct {
	ConversationID string
	Lang           string
	State          *conversation.State
	Configs        conversation.ConfigStore
	Registry       *duty.Registry
	Emitter        *answer.Emitter
	Widgets        model.WidgetStore
	History        model.ContextRepository

	// NLUMaxTurns caps the conversation window handed to chat-shaped duties.
	NLUMaxTurns int
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.State == nil || cfg.Configs == nil || cfg.Emitter == nil {
		return nil, fmt.Errorf("dispatcher: state, configs and emitter are required")
	}
	global, err := cfg.Configs.GlobalAnswers(cfg.Lang)
	if err != nil {
		logx.Warn().Err(err).Str("lang", cfg.Lang).Msg("global answers not found")
		global = map[string]model.AnswerSet{}
	}
	return &Dispatcher{
		conversationID: cfg.ConversationID,
		lang:           cfg.Lang,
		state:          cfg.State,
		configs:        cfg.Configs,
		registry:       cfg.Registry,
		emitter:        cfg.Emitter,
		widgets:        cfg.Widgets,
		history:        cfg.History,
		global:         global,
		runners:        make(map[string]ActionRunner),
		nluMaxTurns:    cfg.NLUMaxTurns,
	}, nil
}

// RegisterAction binds custom code to skill:action.
func (d *Dispatcher) RegisterAction(skillName, actionName string, r ActionRunner) {
	d.runners[skillName+":"+actionName] = r
}

// HandleUtterance ingests one utterance, routes it to a skill and action via
// the routing duties and dispatches the result. A routing miss degrades to
// the global not-understood answer instead of failing the turn.
func (d *Dispatcher) HandleUtterance(ctx context.Context, utterance string) (string, error) {
	if err := d.state.Update(ctx, conversation.Delta{Utterance: utterance}); err != nil {
		return "", err
	}
	d.persistTurn(ctx)

	if d.registry == nil {
		return d.Answer(ctx, NotUnderstoodKey, nil, "")
	}
	skillName, err := d.registry.RouteSkill(ctx, utterance)
	if err != nil {
		return "", err
	}
	if skillName == prompts.SentinelNone {
		return d.Answer(ctx, NotUnderstoodKey, nil, "")
	}

	actionName, err := d.routeAction(ctx, skillName, utterance)
	if err != nil {
		return "", err
	}
	if actionName == prompts.SentinelNone {
		return d.Answer(ctx, NotUnderstoodKey, nil, "")
	}
	args, err := d.resolveArguments(ctx, skillName, actionName, utterance)
	if err != nil {
		return "", err
	}
	return d.Dispatch(ctx, skillName, actionName, args)
}

// Dispatch drives the accumulator through skill name, action name and action
// arguments in that fixed order, then invokes either the answer resolver
// (dialog actions) or the skill's custom action code.
func (d *Dispatcher) Dispatch(ctx context.Context, skillName, actionName string, args map[string]string) (string, error) {
	if err := d.state.Update(ctx, conversation.Delta{SkillName: skillName}); err != nil {
		return "", err
	}
	if err := d.state.Update(ctx, conversation.Delta{ActionName: actionName}); err != nil {
		return "", err
	}
	if args != nil {
		if err := d.state.Update(ctx, conversation.Delta{ActionArguments: args}); err != nil {
			return "", err
		}
	}
	d.persistData(ctx)

	params := d.state.ActionParams(time.Now())
	actionCfg := d.state.ActionConfig()

	if actionCfg != nil && actionCfg.Type == model.ActionLogic {
		runner, ok := d.runners[skillName+":"+actionName]
		if !ok {
			logx.Warn().Str("skill", skillName).Str("action", actionName).Msg("no runner registered for logic action")
			return d.Answer(ctx, NotUnderstoodKey, nil, "")
		}
		if err := runner(ctx, params, d); err != nil {
			return "", fmt.Errorf("run %s:%s: %w", skillName, actionName, err)
		}
		return "", nil
	}

	key := actionName
	if actionCfg != nil && len(actionCfg.Answers) > 0 {
		key = actionCfg.Answers[d.pickIndex(len(actionCfg.Answers))]
	}
	return d.Answer(ctx, key, nil, "")
}

// Answer implements API: three-layer resolution then emission.
func (d *Dispatcher) Answer(ctx context.Context, key string, data map[string]string, replaceMessageID string) (string, error) {
	resolved := d.resolver().Resolve(key, d.state.Current(), data)
	return d.emitter.Emit(d.state.ActionParams(time.Now()), answer.EmitInput{
		Key:              key,
		Answer:           resolved,
		ReplaceMessageID: replaceMessageID,
	})
}

// EmitWidget implements API: the payload is cached first so the presentation
// layer can re-fetch it by id without re-invoking the skill.
func (d *Dispatcher) EmitWidget(ctx context.Context, w *model.Widget, key string, data map[string]string) (string, error) {
	if d.widgets != nil {
		if err := d.widgets.Put(ctx, w); err != nil {
			return "", err
		}
	}
	var resolved model.AnswerConfig
	if key != "" {
		resolved = d.resolver().Resolve(key, d.state.Current(), data)
	}
	return d.emitter.Emit(d.state.ActionParams(time.Now()), answer.EmitInput{
		Key:    key,
		Answer: resolved,
		Widget: w,
	})
}

// FetchWidget returns a cached widget payload. An already-fetched widget is
// served from the store; only a cache miss re-invokes the owning skill
// action, with the emitter muted so the fetch produces no new speech.
func (d *Dispatcher) FetchWidget(ctx context.Context, id string) (*model.Widget, error) {
	if d.widgets == nil {
		return nil, fmt.Errorf("no widget store configured")
	}
	w, ok, err := d.widgets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return w, nil
	}
	params := d.state.ActionParams(time.Now())
	runner, exists := d.runners[params.SkillName+":"+params.ActionName]
	if !exists {
		return nil, fmt.Errorf("widget %s not found", id)
	}
	d.emitter.Mute()
	// The runner's own emission consumes the mute; if it never emits (or
	// fails), the flag must not linger and swallow the next real answer.
	defer d.emitter.Unmute()
	if err := runner(ctx, params, d); err != nil {
		return nil, fmt.Errorf("refetch widget %s: %w", id, err)
	}
	w, ok, err = d.widgets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("widget %s not found after refetch", id)
	}
	return w, nil
}

// routeAction asks the action-routing duty to pick one of the skill's
// actions; its output is validated against the known action set.
func (d *Dispatcher) routeAction(ctx context.Context, skillName, utterance string) (string, error) {
	skillCfg, _, err := d.configs.SkillConfig(skillName)
	if err != nil || len(skillCfg.Actions) == 0 {
		return prompts.SentinelNone, nil
	}
	names := make([]string, 0, len(skillCfg.Actions))
	for name := range skillCfg.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 1 {
		return names[0], nil
	}

	res, err := d.registry.Get(duty.ActionRouting).Execute(ctx, duty.Input{
		Prompt: utterance,
		Data: map[string]string{
			"skill_name":  skillName,
			"action_list": strings.Join(names, ", "),
		},
	})
	if err != nil {
		return "", err
	}
	if res == nil {
		return prompts.SentinelNone, nil
	}
	picked := strings.TrimSpace(res.Output)
	for _, name := range names {
		if name == picked {
			return name, nil
		}
	}
	return prompts.SentinelNone, nil
}

func (d *Dispatcher) resolver() *answer.Resolver {
	layers := answer.Layers{GlobalAnswers: d.global}
	variables := map[string]string{}
	if lc := d.state.LocaleConfig(); lc != nil {
		layers.ActionAnswers = lc.Answers
		layers.CommonAnswers = lc.CommonAnswers
		for k, v := range lc.Variables {
			variables[k] = v
		}
	}
	if la := d.state.LocaleAction(); la != nil {
		for k, v := range la.Variables {
			variables[k] = v
		}
		// Per-action answer sets shadow the skill-level set under the
		// action's own key.
		if actionName := d.state.Context().ActionName; actionName != "" && len(la.Answers) > 0 {
			merged := make(map[string]model.AnswerSet, len(layers.ActionAnswers)+1)
			for k, v := range layers.ActionAnswers {
				merged[k] = v
			}
			merged[actionName] = la.Answers
			layers.ActionAnswers = merged
		}
	}
	return answer.NewResolver(layers, variables)
}

func (d *Dispatcher) persistTurn(ctx context.Context) {
	if d.history == nil {
		return
	}
	turn := d.state.Current()
	if err := d.history.AppendTurn(ctx, d.conversationID, &turn); err != nil {
		logx.Warn().Err(err).Str("conversation_id", d.conversationID).Msg("failed to persist turn")
	}
}

func (d *Dispatcher) persistData(ctx context.Context) {
	if d.history == nil {
		return
	}
	data := d.state.Context().Data
	if err := d.history.SaveData(ctx, d.conversationID, data); err != nil {
		logx.Warn().Err(err).Str("conversation_id", d.conversationID).Msg("failed to persist context data")
	}
}

func (d *Dispatcher) pickIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}

var _ API = (*Dispatcher)(nil)
