package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-assistant/core/internal/assistant/model"
)

type stubExtractor struct {
	entities []model.Entity
	err      error
}

func (s *stubExtractor) Extract(context.Context, string) ([]model.Entity, error) {
	return s.entities, s.err
}

type stubConfigStore struct {
	skills  map[string]*model.SkillConfig
	locales map[string]*model.LocaleConfig
	global  map[string]model.AnswerSet
}

func (s *stubConfigStore) SkillConfig(name string) (*model.SkillConfig, string, error) {
	cfg, ok := s.skills[name]
	if !ok {
		return nil, "", fmt.Errorf("skill %s not found", name)
	}
	return cfg, "skills/" + name + "/config/skill.json", nil
}

func (s *stubConfigStore) LocaleConfig(name, lang string) (*model.LocaleConfig, error) {
	cfg, ok := s.locales[name]
	if !ok {
		return nil, fmt.Errorf("locale for %s not found", name)
	}
	return cfg, nil
}

func (s *stubConfigStore) GlobalAnswers(string) (map[string]model.AnswerSet, error) {
	if s.global == nil {
		return map[string]model.AnswerSet{}, nil
	}
	return s.global, nil
}

func (s *stubConfigStore) SkillNames() ([]string, error) {
	names := make([]string, 0, len(s.skills))
	for n := range s.skills {
		names = append(names, n)
	}
	return names, nil
}

func newTestState(extractor EntityExtractor) *State {
	configs := &stubConfigStore{
		skills: map[string]*model.SkillConfig{
			"greeting_skill": {
				Name: "greeting_skill",
				Actions: map[string]model.ActionConfig{
					"greet": {Type: model.ActionDialog, Answers: []string{"greet"}},
				},
			},
			"weather_skill": {Name: "weather_skill", Actions: map[string]model.ActionConfig{}},
		},
		locales: map[string]*model.LocaleConfig{
			"greeting_skill": {Lang: "en"},
		},
	}
	if extractor == nil {
		extractor = &stubExtractor{}
	}
	return NewState("en", configs, extractor, NewLexiconSentiment())
}

func TestUpdateUtteranceAppendsExactly(t *testing.T) {
	s := newTestState(&stubExtractor{entities: []model.Entity{{Type: "color", Value: "blue"}}})
	ctx := context.Background()

	before := len(s.Context().Utterances)
	utterance := "  paint it Blue! "
	require.NoError(t, s.Update(ctx, Delta{Utterance: utterance}))

	got := s.Context()
	require.Len(t, got.Utterances, before+1)
	// no trimming or mutation of the submitted utterance
	assert.Equal(t, utterance, got.Utterances[before])
	assert.Len(t, got.Entities, 1)
	assert.Len(t, got.Sentiments, before+1)
	assert.Equal(t, utterance, s.Current().Utterance)
}

func TestUpdateSkillSwitchPreservesDataResetsArguments(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, Delta{Extra: map[string]any{"counter": 3}}))
	require.NoError(t, s.Update(ctx, Delta{Utterance: "hello"}))
	require.NoError(t, s.Update(ctx, Delta{SkillName: "greeting_skill"}))
	require.NoError(t, s.Update(ctx, Delta{ActionArguments: map[string]string{"name": "Ada"}}))

	require.Len(t, s.Context().ActionArguments, 1)
	dataBefore := s.Context().Data

	// switching skills derives a new context name
	require.NoError(t, s.Update(ctx, Delta{Utterance: "what's the weather"}))
	require.NoError(t, s.Update(ctx, Delta{SkillName: "weather_skill"}))

	got := s.Context()
	assert.Equal(t, "weather", got.Name)
	assert.Equal(t, dataBefore, got.Data, "free-form data must survive the reset")
	assert.Empty(t, got.ActionArguments, "action arguments are action-scoped and must reset")
	// the just-applied turn survives the reset
	require.Len(t, got.Utterances, 1)
	assert.Equal(t, "what's the weather", got.Utterances[0])
}

func TestUpdateSameContextNameDoesNotReset(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, Delta{Utterance: "hello"}))
	require.NoError(t, s.Update(ctx, Delta{SkillName: "greeting_skill"}))
	require.NoError(t, s.Update(ctx, Delta{Utterance: "hello again"}))

	before := s.Context()
	require.NoError(t, s.Update(ctx, Delta{SkillName: "greeting_skill"}))
	after := s.Context()

	assert.Equal(t, len(before.Utterances), len(after.Utterances))
	assert.Equal(t, len(before.Entities), len(after.Entities))
	assert.Equal(t, len(before.Sentiments), len(after.Sentiments))
}

func TestUpdateMissingConfigDoesNotFail(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, Delta{SkillName: "unknown_skill"}))
	assert.Nil(t, s.SkillConfig())
	assert.Equal(t, "unknown", s.Context().Name)
}

func TestUpdateSkillSwitchClearsStaleConfig(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, Delta{SkillName: "greeting_skill"}))
	require.NotNil(t, s.SkillConfig())
	require.NotNil(t, s.LocaleConfig())

	// switching to a skill without config must not keep serving the previous
	// skill's bindings
	require.NoError(t, s.Update(ctx, Delta{SkillName: "unknown_skill"}))
	assert.Nil(t, s.SkillConfig())
	assert.Nil(t, s.LocaleConfig())
	assert.Equal(t, "unknown_skill", s.Context().SkillName)

	require.NoError(t, s.Update(ctx, Delta{ActionName: "greet"}))
	assert.Nil(t, s.ActionConfig(), "greeting's action map must be unreachable from another context")
	assert.Nil(t, s.LocaleAction())
}

func TestUpdateActionArgumentsAppendsCopy(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	args := map[string]string{"list": "groceries"}
	require.NoError(t, s.Update(ctx, Delta{ActionArguments: args}))
	args["list"] = "mutated"

	got := s.Context().ActionArguments
	require.Len(t, got, 1)
	assert.Equal(t, "groceries", got[0]["list"])
	assert.Equal(t, "groceries", s.Current().ActionArguments["list"])
}

func TestContextSnapshotDoesNotAliasData(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, Delta{Extra: map[string]any{"counter": 3}}))

	snap := s.Context()
	snap.Data["counter"] = 99
	snap.Data["injected"] = true

	got := s.Context()
	assert.Equal(t, 3, got.Data["counter"])
	assert.NotContains(t, got.Data, "injected")
}

func TestUpdatePrecedenceUtteranceFirst(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	// when several fields are populated, only the highest-precedence class applies
	require.NoError(t, s.Update(ctx, Delta{Utterance: "hi", SkillName: "greeting_skill"}))
	assert.Equal(t, "", s.Context().Name, "skill delta must not be consumed by an utterance update")
	assert.Len(t, s.Context().Utterances, 1)
}

func TestUpdateActionNameBindsConfig(t *testing.T) {
	s := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, Delta{SkillName: "greeting_skill"}))
	require.NoError(t, s.Update(ctx, Delta{ActionName: "greet"}))

	require.NotNil(t, s.ActionConfig())
	assert.Equal(t, model.ActionDialog, s.ActionConfig().Type)
	assert.Equal(t, "greet", s.Context().ActionName)
}
