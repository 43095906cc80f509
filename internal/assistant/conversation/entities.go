package conversation

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/lumen-assistant/core/internal/assistant/duty"
	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// basic safety limits to avoid pathological model outputs
const (
	maxEntityOutputLen = 64 * 1024
	maxEntities        = 100
	maxErrSnippet      = 200
)

// entityGrammar constrains the custom-NER duty output on local sessions.
const entityGrammar = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["type", "value"],
    "properties": {
      "type": {"type": "string"},
      "value": {"type": "string"},
      "source_text": {"type": "string"},
      "start": {"type": "integer"},
      "end": {"type": "integer"},
      "confidence": {"type": "number"}
    }
  }
}`

// DutyEntityExtractor resolves entities through the custom-NER duty. A nil
// duty result degrades to an empty entity list; the turn still proceeds.
type DutyEntityExtractor struct {
	registry *duty.Registry
}

func NewDutyEntityExtractor(registry *duty.Registry) *DutyEntityExtractor {
	return &DutyEntityExtractor{registry: registry}
}

func (e *DutyEntityExtractor) Extract(ctx context.Context, utterance string) ([]model.Entity, error) {
	res, err := e.registry.Get(duty.CustomNER).Execute(ctx, duty.Input{
		Prompt:  utterance,
		Grammar: entityGrammar,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return ParseEntityOutput(res.Output, utterance), nil
}

var _ EntityExtractor = (*DutyEntityExtractor)(nil)

// ParseEntityOutput decodes and validates a custom-NER duty output. Invalid
// records are dropped individually; a malformed document yields no entities.
func ParseEntityOutput(content, utterance string) []model.Entity {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) > maxEntityOutputLen {
		logx.Warn().Int("orig_len", len(content)).Msg("entity output truncated due to size limit")
		content = content[:maxEntityOutputLen]
	}
	// tolerate code fences around the JSON body
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	var raw []struct {
		Type       string  `json:"type"`
		Value      string  `json:"value"`
		SourceText string  `json:"source_text"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		logx.Warn().Err(err).Str("snippet", safeSnippet(content)).Msg("entity output is not a JSON array")
		return nil
	}

	entities := make([]model.Entity, 0, len(raw))
	for _, r := range raw {
		if len(entities) >= maxEntities {
			logx.Warn().Int("max_entities", maxEntities).Msg("entity list capped")
			break
		}
		if r.Type == "" || r.Value == "" {
			continue
		}
		if !utf8.ValidString(r.Type) || !utf8.ValidString(r.Value) {
			continue
		}
		if math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0) || r.Confidence < 0 || r.Confidence > 1 {
			r.Confidence = 0
		}
		e := model.Entity{
			Type:       strings.TrimSpace(r.Type),
			Value:      strings.TrimSpace(r.Value),
			SourceText: r.SourceText,
			Confidence: r.Confidence,
		}
		if r.Start >= 0 && r.End >= r.Start && r.End <= len(utterance) {
			e.Span = [2]int{r.Start, r.End}
			if e.SourceText == "" {
				e.SourceText = utterance[r.Start:r.End]
			}
		}
		entities = append(entities, e)
	}
	return entities
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
