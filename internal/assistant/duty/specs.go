package duty

import (
	"time"

	"github.com/lumen-assistant/core/internal/assistant/duty/prompts"
	"github.com/lumen-assistant/core/internal/assistant/model"
)

// specFor builds the static spec of one duty type. Routing and extraction
// duties decode greedily; the paraphraser keeps some temperature.
func specFor(typ Type, cfg model.DutyConfig, promptData map[string]string) Spec {
	spec := Spec{
		PromptData:    promptData,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		MaxTokens:     cfg.MaxTokens,
		ThoughtBudget: cfg.ThoughtBudget,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	switch typ {
	case SkillRouting:
		spec.SystemPrompt = prompts.SkillRouter
		spec.Shape = ShapeCompletion
		spec.Temperature = 0
	case ActionRouting:
		spec.SystemPrompt = prompts.ActionRouter
		spec.Shape = ShapeCompletion
		spec.Temperature = 0
	case SlotFilling:
		spec.SystemPrompt = prompts.SlotFilling
		spec.Shape = ShapeChat
	case ArgumentExtraction:
		spec.SystemPrompt = prompts.ArgumentExtraction
		spec.Shape = ShapeCompletion
		spec.Temperature = 0
	case CustomNER:
		spec.SystemPrompt = prompts.CustomNER
		spec.Shape = ShapeCompletion
		spec.Temperature = 0
	case Paraphrase:
		spec.SystemPrompt = prompts.Paraphrase
		spec.Shape = ShapeChat
		spec.Temperature = 0.7
	}
	return spec
}

// renderSystem renders the duty's system prompt template with its static
// data overlaid by per-call data.
func renderSystem(spec Spec, callData map[string]string) string {
	if len(callData) == 0 {
		return prompts.Render(spec.SystemPrompt, spec.PromptData)
	}
	merged := make(map[string]string, len(spec.PromptData)+len(callData))
	for k, v := range spec.PromptData {
		merged[k] = v
	}
	for k, v := range callData {
		merged[k] = v
	}
	return prompts.Render(spec.SystemPrompt, merged)
}
