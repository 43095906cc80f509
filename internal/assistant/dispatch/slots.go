package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/lumen-assistant/core/internal/assistant/duty"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

const defaultNLUMaxTurns = 5

// resolveArguments produces the action arguments for a routed action. Actions
// without declared slots need none. Extraction runs against the current
// utterance first; slots it leaves open get a second pass over the recent
// conversation through the slot-filling duty. Either duty being unavailable
// degrades to whatever was resolved so far.
func (d *Dispatcher) resolveArguments(ctx context.Context, skillName, actionName, utterance string) (map[string]string, error) {
	skillCfg, _, err := d.configs.SkillConfig(skillName)
	if err != nil {
		return nil, nil
	}
	actionCfg, ok := skillCfg.Actions[actionName]
	if !ok || len(actionCfg.Slots) == 0 {
		return nil, nil
	}

	args, err := d.extractArguments(ctx, actionCfg.Slots, actionName, utterance)
	if err != nil {
		return nil, err
	}

	if missing := missingSlots(actionCfg.Slots, args); len(missing) > 0 {
		filled, err := d.fillSlots(ctx, missing, actionName)
		if err != nil {
			return nil, err
		}
		if args == nil && len(filled) > 0 {
			args = make(map[string]string, len(filled))
		}
		for k, v := range filled {
			args[k] = v
		}
	}

	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}

// extractArguments runs the argument-extraction duty over one utterance and
// keeps only the declared slots from its JSON object output.
func (d *Dispatcher) extractArguments(ctx context.Context, slots []string, actionName, utterance string) (map[string]string, error) {
	res, err := d.registry.Get(duty.ArgumentExtraction).Execute(ctx, duty.Input{
		Prompt: utterance,
		Data: map[string]string{
			"action_name":   actionName,
			"argument_list": strings.Join(slots, ", "),
		},
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(trimFence(res.Output)), &raw); err != nil {
		logx.Warn().Err(err).Str("action", actionName).Msg("argument extraction output is not a JSON object")
		return nil, nil
	}
	return keepSlots(raw, slots), nil
}

// fillSlots asks the chat-shaped slot-filling duty to resolve the remaining
// slots from the recent conversation, capped to the configured turn window.
func (d *Dispatcher) fillSlots(ctx context.Context, slots []string, actionName string) (map[string]string, error) {
	history := d.recentHistory()
	if len(history) == 0 {
		return nil, nil
	}
	res, err := d.registry.Get(duty.SlotFilling).Execute(ctx, duty.Input{
		History: history,
		Data: map[string]string{
			"action_name": actionName,
			"slot_list":   strings.Join(slots, ", "),
		},
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return keepSlots(parseSlotLines(res.Output), slots), nil
}

// recentHistory renders the tail of the running context as chat messages.
func (d *Dispatcher) recentHistory() []*schema.Message {
	maxTurns := d.nluMaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultNLUMaxTurns
	}
	utterances := d.state.Context().Utterances
	if len(utterances) > maxTurns {
		utterances = utterances[len(utterances)-maxTurns:]
	}
	history := make([]*schema.Message, 0, len(utterances))
	for _, u := range utterances {
		history = append(history, schema.UserMessage(u))
	}
	return history
}

// parseSlotLines decodes the slot-filling output format, one
// "slot_name=value" pair per line.
func parseSlotLines(out string) map[string]string {
	pairs := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			pairs[name] = value
		}
	}
	return pairs
}

func keepSlots(raw map[string]string, slots []string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string)
	for _, s := range slots {
		if v, ok := raw[s]; ok && strings.TrimSpace(v) != "" {
			out[s] = strings.TrimSpace(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func missingSlots(slots []string, args map[string]string) []string {
	missing := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, ok := args[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

func trimFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
