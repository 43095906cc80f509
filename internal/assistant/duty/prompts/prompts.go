package prompts

import (
	_ "embed"
	"strings"
)

// SentinelNone is the literal a routing duty must output when nothing
// matches. The prompt contract forbids any other token around it.
const SentinelNone = "None"

//go:embed template/skill_router.txt
var SkillRouter string

//go:embed template/action_router.txt
var ActionRouter string

//go:embed template/slot_filling.txt
var SlotFilling string

//go:embed template/argument_extraction.txt
var ArgumentExtraction string

//go:embed template/custom_ner.txt
var CustomNER string

//go:embed template/paraphrase.txt
var Paraphrase string

// Render substitutes {token} placeholders in a prompt template. Only known
// tokens are touched so JSON braces in the template body survive.
func Render(tpl string, data map[string]string) string {
	if len(data) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
