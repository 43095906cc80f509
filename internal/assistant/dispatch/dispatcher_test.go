package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-assistant/core/internal/assistant/answer"
	"github.com/lumen-assistant/core/internal/assistant/conversation"
	"github.com/lumen-assistant/core/internal/assistant/duty"
	"github.com/lumen-assistant/core/internal/assistant/model"
	"github.com/lumen-assistant/core/internal/assistant/repo"
)

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string) ([]model.Entity, error) { return nil, nil }

type stubConfigStore struct{}

func (stubConfigStore) SkillConfig(name string) (*model.SkillConfig, string, error) {
	switch name {
	case "greeting_skill":
		return &model.SkillConfig{
			Name: "greeting_skill",
			Actions: map[string]model.ActionConfig{
				"greet": {Type: model.ActionDialog, Answers: []string{"greet"}},
			},
		}, "skills/greeting_skill/config/skill.json", nil
	case "todo_skill":
		return &model.SkillConfig{
			Name: "todo_skill",
			Actions: map[string]model.ActionConfig{
				"show_list": {Type: model.ActionLogic},
			},
		}, "skills/todo_skill/config/skill.json", nil
	case "farewell_skill":
		return &model.SkillConfig{
			Name: "farewell_skill",
			Actions: map[string]model.ActionConfig{
				"farewell": {Type: model.ActionDialog},
			},
		}, "skills/farewell_skill/config/skill.json", nil
	case "reminder_skill":
		return &model.SkillConfig{
			Name: "reminder_skill",
			Actions: map[string]model.ActionConfig{
				"set_reminder": {
					Type:    model.ActionDialog,
					Answers: []string{"reminder_set"},
					Slots:   []string{"title"},
				},
			},
		}, "skills/reminder_skill/config/skill.json", nil
	}
	return nil, "", fmt.Errorf("skill %s not found", name)
}

func (stubConfigStore) LocaleConfig(name, lang string) (*model.LocaleConfig, error) {
	switch name {
	case "greeting_skill":
		return &model.LocaleConfig{
			Lang: lang,
			Answers: map[string]model.AnswerSet{
				"greet": {model.PlainAnswer("Hello {{ name }}")},
			},
			Variables: map[string]string{"name": "friend"},
		}, nil
	case "reminder_skill":
		return &model.LocaleConfig{
			Lang: lang,
			Answers: map[string]model.AnswerSet{
				"reminder_set": {model.PlainAnswer("Reminder saved: {{ title }}")},
			},
		}, nil
	case "farewell_skill":
		return &model.LocaleConfig{
			Lang: lang,
			Actions: map[string]model.LocaleAction{
				"farewell": {
					Answers:   model.AnswerSet{model.PlainAnswer("Bye {{ name }}")},
					Variables: map[string]string{"name": "pal"},
				},
			},
		}, nil
	}
	return nil, fmt.Errorf("locale for %s not found", name)
}

func (stubConfigStore) GlobalAnswers(string) (map[string]model.AnswerSet, error) {
	return map[string]model.AnswerSet{
		"not_understood": {model.PlainAnswer("Sorry, I did not get that")},
	}, nil
}

func (stubConfigStore) SkillNames() ([]string, error) {
	return []string{"farewell_skill", "greeting_skill", "reminder_skill", "todo_skill"}, nil
}

// stubCompleter replays a scripted sequence of outputs, one per duty call,
// repeating the last entry once the script runs out.
type stubCompleter struct {
	outputs []string
	calls   int
}

func (c *stubCompleter) Complete(context.Context, duty.CompletionRequest) (string, duty.Usage, error) {
	i := c.calls
	c.calls++
	if i >= len(c.outputs) {
		i = len(c.outputs) - 1
	}
	return c.outputs[i], duty.Usage{}, nil
}

func newTestDispatcher(t *testing.T, completer duty.Completer) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	configs := stubConfigStore{}
	state := conversation.NewState("en", configs, stubExtractor{}, conversation.NewLexiconSentiment())

	var registry *duty.Registry
	if completer != nil {
		names, err := configs.SkillNames()
		require.NoError(t, err)
		registry = duty.NewRegistry(model.DutyConfig{}, nil, completer, names)
	}

	var buf bytes.Buffer
	d, err := New(Config{
		ConversationID: "conv-1",
		Lang:           "en",
		State:          state,
		Configs:        configs,
		Registry:       registry,
		Emitter:        answer.NewEmitter(&buf),
		Widgets:        repo.NewMemoryWidgetStore(),
	})
	require.NoError(t, err)
	return d, &buf
}

func lastOutput(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte{'\n'})
	require.NotEmpty(t, lines)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &record))
	output, ok := record["output"].(map[string]any)
	require.True(t, ok)
	return output
}

func TestDispatchDialogAction(t *testing.T) {
	d, buf := newTestDispatcher(t, nil)

	id, err := d.Dispatch(context.Background(), "greeting_skill", "greet", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	output := lastOutput(t, buf)
	assert.Equal(t, "greet", output["codes"])
	assert.Equal(t, "Hello friend", output["answer"], "locale variables feed substitution")
}

func TestDispatchUsesPerActionLocaleAnswers(t *testing.T) {
	d, buf := newTestDispatcher(t, nil)

	// farewell has no answer keys in the skill config, so the action name is
	// the key and the locale action's own answer set resolves it
	_, err := d.Dispatch(context.Background(), "farewell_skill", "farewell", nil)
	require.NoError(t, err)

	output := lastOutput(t, buf)
	assert.Equal(t, "farewell", output["codes"])
	assert.Equal(t, "Bye pal", output["answer"])
}

func TestHandleUtteranceRoutesToSkill(t *testing.T) {
	completer := &stubCompleter{outputs: []string{"greeting_skill"}}
	d, buf := newTestDispatcher(t, completer)

	id, err := d.HandleUtterance(context.Background(), "hello there")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	// greeting_skill has one action, so only the skill router is consulted
	assert.Equal(t, 1, completer.calls)

	output := lastOutput(t, buf)
	assert.Equal(t, "greet", output["codes"])
}

func TestHandleUtteranceNoMatchDegrades(t *testing.T) {
	completer := &stubCompleter{outputs: []string{"None"}}
	d, buf := newTestDispatcher(t, completer)

	id, err := d.HandleUtterance(context.Background(), "gibberish")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	output := lastOutput(t, buf)
	assert.Equal(t, NotUnderstoodKey, output["codes"])
	assert.Equal(t, "Sorry, I did not get that", output["answer"])
}

func TestHandleUtteranceNoRegistryDegrades(t *testing.T) {
	d, buf := newTestDispatcher(t, nil)

	_, err := d.HandleUtterance(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, NotUnderstoodKey, lastOutput(t, buf)["codes"])
}

func TestDispatchLogicActionWithoutRunnerDegrades(t *testing.T) {
	d, buf := newTestDispatcher(t, nil)

	_, err := d.Dispatch(context.Background(), "todo_skill", "show_list", nil)
	require.NoError(t, err)
	assert.Equal(t, NotUnderstoodKey, lastOutput(t, buf)["codes"])
}

func TestHandleUtteranceExtractsArguments(t *testing.T) {
	// call 1: skill router; call 2: argument extraction (single action skips
	// action routing)
	completer := &stubCompleter{outputs: []string{
		"reminder_skill",
		`{"title":"buy milk"}`,
	}}
	d, buf := newTestDispatcher(t, completer)

	_, err := d.HandleUtterance(context.Background(), "remind me to buy milk")
	require.NoError(t, err)
	assert.Equal(t, 2, completer.calls)

	output := lastOutput(t, buf)
	assert.Equal(t, "reminder_set", output["codes"])
	assert.Equal(t, "Reminder saved: buy milk", output["answer"])
}

func TestHandleUtteranceFillsMissingSlots(t *testing.T) {
	// extraction resolves nothing, so the slot filler gets a pass over the
	// conversation window
	completer := &stubCompleter{outputs: []string{
		"reminder_skill",
		`{}`,
		"title=water the plants",
	}}
	d, buf := newTestDispatcher(t, completer)

	_, err := d.HandleUtterance(context.Background(), "set that reminder we talked about")
	require.NoError(t, err)
	assert.Equal(t, 3, completer.calls)

	output := lastOutput(t, buf)
	assert.Equal(t, "Reminder saved: water the plants", output["answer"])
}

func TestFetchWidgetIsIdempotent(t *testing.T) {
	d, buf := newTestDispatcher(t, nil)

	runnerCalls := 0
	widgetID := "w-1"
	d.RegisterAction("todo_skill", "show_list", func(ctx context.Context, params model.ActionParams, api API) error {
		runnerCalls++
		_, err := api.EmitWidget(ctx, &model.Widget{
			ID:         widgetID,
			ActionName: params.ActionName,
			Widget:     "list",
			Payload:    map[string]any{"items": []any{"milk"}},
		}, "", nil)
		return err
	})

	_, err := d.Dispatch(context.Background(), "todo_skill", "show_list", nil)
	require.NoError(t, err)
	require.Equal(t, 1, runnerCalls)
	assert.Equal(t, "widget", lastOutput(t, buf)["codes"])

	// a cached widget is served from the store, not the skill
	w, err := d.FetchWidget(context.Background(), "w-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", w.ID)
	assert.Equal(t, 1, runnerCalls)

	// a cache miss re-invokes the owning action with the emitter muted
	widgetID = "w-2"
	written := buf.Len()
	w, err = d.FetchWidget(context.Background(), "w-2")
	require.NoError(t, err)
	assert.Equal(t, "w-2", w.ID)
	assert.Equal(t, 2, runnerCalls)
	assert.Equal(t, written, buf.Len(), "a refetch must not produce new speech")
}

func TestFailedRefetchDoesNotMuteNextAnswer(t *testing.T) {
	d, buf := newTestDispatcher(t, nil)

	calls := 0
	d.RegisterAction("todo_skill", "show_list", func(ctx context.Context, params model.ActionParams, api API) error {
		calls++
		if calls > 1 {
			return fmt.Errorf("backend unavailable")
		}
		_, err := api.EmitWidget(ctx, &model.Widget{ID: "w-1", ActionName: params.ActionName, Widget: "list"}, "", nil)
		return err
	})

	_, err := d.Dispatch(context.Background(), "todo_skill", "show_list", nil)
	require.NoError(t, err)

	_, err = d.FetchWidget(context.Background(), "w-missing")
	require.Error(t, err)

	written := buf.Len()
	_, err = d.Answer(context.Background(), NotUnderstoodKey, nil, "")
	require.NoError(t, err)
	assert.Greater(t, buf.Len(), written, "an answer after a failed refetch must still be written")
}
