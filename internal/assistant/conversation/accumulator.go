package conversation

import (
	"context"
	"time"

	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// EntityExtractor resolves typed entities from a raw utterance. The default
// implementation is backed by the custom-NER duty; failures degrade to an
// empty entity list.
type EntityExtractor interface {
	Extract(ctx context.Context, utterance string) ([]model.Entity, error)
}

// SentimentAnalyzer scores one utterance.
type SentimentAnalyzer interface {
	Analyze(utterance string) model.Sentiment
}

// Delta is a sparse partial update. Callers submit one populated field per
// call; when several are set, a single class is applied following the fixed
// precedence utterance > skill name > action name > action arguments > extra.
type Delta struct {
	Utterance       string
	SkillName       string
	ActionName      string
	ActionArguments map[string]string
	Extra           map[string]any
}

// State is the conversation accumulator for a single logical conversation.
// It is not safe for concurrent writers; callers serialize turns per
// conversation.
type State struct {
	lang      string
	configs   ConfigStore
	extractor EntityExtractor
	sentiment SentimentAnalyzer

	current         model.Turn
	context         model.Context
	skillConfig     *model.SkillConfig
	skillConfigPath string
	localeConfig    *model.LocaleConfig
	actionConfig    *model.ActionConfig
	localeAction    *model.LocaleAction
}

// NewState creates an empty conversation state bound to its collaborators.
func NewState(lang string, configs ConfigStore, extractor EntityExtractor, sentiment SentimentAnalyzer) *State {
	return &State{
		lang:      lang,
		configs:   configs,
		extractor: extractor,
		sentiment: sentiment,
		context:   model.Context{Data: map[string]any{}},
	}
}

// Update applies exactly one update class per call. Missing skill or locale
// configuration is logged and tolerated; downstream answer resolution
// degrades gracefully on nil config fields.
func (s *State) Update(ctx context.Context, d Delta) error {
	switch {
	case d.Utterance != "":
		s.applyUtterance(ctx, d.Utterance)
	case d.SkillName != "":
		s.applySkillName(d.SkillName)
	case d.ActionName != "":
		s.applyActionName(d.ActionName)
	case d.ActionArguments != nil:
		s.applyActionArguments(d.ActionArguments)
	default:
		s.applyExtra(d.Extra)
	}
	return nil
}

func (s *State) applyUtterance(ctx context.Context, utterance string) {
	entities, err := s.extractor.Extract(ctx, utterance)
	if err != nil {
		logx.Warn().Err(err).Msg("entity extraction failed; continuing without entities")
		entities = nil
	}
	sentiment := s.sentiment.Analyze(utterance)

	s.current = model.Turn{
		Utterance: utterance,
		Entities:  entities,
		Sentiment: sentiment,
	}

	s.context.Utterances = append(s.context.Utterances, utterance)
	s.context.Entities = append(s.context.Entities, entities...)
	s.context.Sentiments = append(s.context.Sentiments, sentiment)
}

func (s *State) applySkillName(skillName string) {
	name := model.ContextName(skillName)
	if name != s.context.Name {
		// Context switch: everything resets except the just-applied turn data
		// and the free-form data map. Action arguments are action-scoped and
		// the new context has not resolved an action yet, so their history
		// starts empty.
		data := s.context.Data
		if data == nil {
			data = map[string]any{}
		}
		next := model.Context{
			Name:      name,
			SkillName: skillName,
			Data:      data,
		}
		if s.current.Utterance != "" {
			next.Utterances = []string{s.current.Utterance}
			next.Entities = append(next.Entities, s.current.Entities...)
			next.Sentiments = []model.Sentiment{s.current.Sentiment}
		}
		s.context = next
		s.current.ActionArguments = nil
		// The old skill's bindings must not leak into the new context: when
		// the lookups below fail the state degrades to nil configs rather
		// than serving the previous skill's actions and answers.
		s.skillConfig = nil
		s.skillConfigPath = ""
		s.localeConfig = nil
		s.actionConfig = nil
		s.localeAction = nil
	} else {
		s.context.SkillName = skillName
	}

	skillCfg, path, err := s.configs.SkillConfig(skillName)
	if err != nil {
		logx.Warn().Err(err).Str("skill", skillName).Msg("skill config not found")
	} else {
		s.skillConfig = skillCfg
		s.skillConfigPath = path
	}
	localeCfg, err := s.configs.LocaleConfig(skillName, s.lang)
	if err != nil {
		logx.Warn().Err(err).Str("skill", skillName).Str("lang", s.lang).Msg("locale config not found")
	} else {
		s.localeConfig = localeCfg
	}
}

func (s *State) applyActionName(actionName string) {
	if s.skillConfig == nil {
		logx.Warn().Str("action", actionName).Msg("action applied without a skill config")
	} else if ac, ok := s.skillConfig.Actions[actionName]; ok {
		s.actionConfig = &ac
	} else {
		logx.Warn().Str("skill", s.skillConfig.Name).Str("action", actionName).Msg("action config not found")
		s.actionConfig = nil
	}
	if s.localeConfig != nil {
		if la, ok := s.localeConfig.Actions[actionName]; ok {
			s.localeAction = &la
		} else {
			s.localeAction = nil
		}
	}
	s.context.ActionName = actionName
}

func (s *State) applyActionArguments(args map[string]string) {
	s.current.ActionArguments = cloneArgs(args)
	s.context.ActionArguments = append(s.context.ActionArguments, cloneArgs(args))
}

func (s *State) applyExtra(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if s.context.Data == nil {
		s.context.Data = map[string]any{}
	}
	for k, v := range extra {
		s.context.Data[k] = v
	}
}

// Current returns the in-flight turn.
func (s *State) Current() model.Turn {
	return s.current
}

// Context returns a snapshot of the running context. List headers and the
// data map are copied so readers cannot alias the accumulator's storage.
func (s *State) Context() model.Context {
	snap := s.context
	snap.Utterances = append([]string(nil), s.context.Utterances...)
	snap.Entities = append([]model.Entity(nil), s.context.Entities...)
	snap.Sentiments = append([]model.Sentiment(nil), s.context.Sentiments...)
	snap.ActionArguments = append([]map[string]string(nil), s.context.ActionArguments...)
	if s.context.Data != nil {
		data := make(map[string]any, len(s.context.Data))
		for k, v := range s.context.Data {
			data[k] = v
		}
		snap.Data = data
	}
	return snap
}

// SkillConfig returns the merged config of the active skill, or nil.
func (s *State) SkillConfig() *model.SkillConfig { return s.skillConfig }

// LocaleConfig returns the active skill's locale config, or nil.
func (s *State) LocaleConfig() *model.LocaleConfig { return s.localeConfig }

// ActionConfig returns the active action's static config, or nil.
func (s *State) ActionConfig() *model.ActionConfig { return s.actionConfig }

// LocaleAction returns the active action's locale payload, or nil.
func (s *State) LocaleAction() *model.LocaleAction { return s.localeAction }

// ActionParams merges the skill binding, the current turn and the running
// context into the process context handed to the resolver and skill code.
func (s *State) ActionParams(now time.Time) model.ActionParams {
	return model.ActionParams{
		Lang:            s.lang,
		Utterance:       s.current.Utterance,
		ActionArguments: cloneArgs(s.current.ActionArguments),
		Entities:        append([]model.Entity(nil), s.current.Entities...),
		Sentiment:       s.current.Sentiment,
		ContextName:     s.context.Name,
		SkillName:       s.context.SkillName,
		ActionName:      s.context.ActionName,
		Context:         s.Context(),
		SkillConfig:     s.skillConfig,
		SkillConfigPath: s.skillConfigPath,
		ExtraContext:    model.NewExtraContext(s.lang, now),
	}
}

func cloneArgs(args map[string]string) map[string]string {
	if args == nil {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
