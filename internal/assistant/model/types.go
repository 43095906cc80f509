package model

import (
	"strings"
	"time"
)

// ContextSuffix is stripped from a skill name to derive its context name,
// so sibling actions of one skill share a single conversation context.
const ContextSuffix = "_skill"

// SentimentVote is the discrete polarity of one utterance.
type SentimentVote string

const (
	SentimentPositive SentimentVote = "positive"
	SentimentNeutral  SentimentVote = "neutral"
	SentimentNegative SentimentVote = "negative"
)

// Sentiment carries the vote and the raw score it was derived from.
type Sentiment struct {
	Vote  SentimentVote `json:"vote"`
	Score float64       `json:"score"`
}

// Entity is a typed value extracted from an utterance, with the source text
// span it was resolved from.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	SourceText string  `json:"source_text"`
	Span       [2]int  `json:"span"`
	Confidence float64 `json:"confidence"`
}

// Turn is one user utterance cycle. A Turn is immutable once folded into the
// running Context.
type Turn struct {
	Utterance       string            `json:"utterance"`
	Entities        []Entity          `json:"entities"`
	Sentiment       Sentiment         `json:"sentiment"`
	ActionArguments map[string]string `json:"action_arguments"`
}

// Context is the cross-turn accumulator scoped to one context name.
// The four list fields are append-only and grow monotonically across turns
// within the same context name. Data survives context resets.
type Context struct {
	Name            string              `json:"name"`
	SkillName       string              `json:"skill_name"`
	ActionName      string              `json:"action_name"`
	Utterances      []string            `json:"utterances"`
	Entities        []Entity            `json:"entities"`
	Sentiments      []Sentiment         `json:"sentiments"`
	ActionArguments []map[string]string `json:"action_arguments"`
	Data            map[string]any      `json:"data"`
}

// ContextName derives the context name bound to a skill.
func ContextName(skillName string) string {
	return strings.TrimSuffix(skillName, ContextSuffix)
}

// ActionType distinguishes static dialog actions from logic actions backed by
// custom skill code.
type ActionType string

const (
	ActionDialog ActionType = "dialog"
	ActionLogic  ActionType = "logic"
)

// SkillConfig is the static, locale-independent part of a skill declaration.
type SkillConfig struct {
	Name    string                  `json:"name"`
	Version string                  `json:"version"`
	Actions map[string]ActionConfig `json:"actions"`
}

// ActionConfig describes one entry point of a skill.
type ActionConfig struct {
	Type ActionType `json:"type"`
	// Answers lists answer keys for dialog actions.
	Answers []string `json:"answers,omitempty"`
	// Slots names the slots a slot-filling duty should resolve.
	Slots []string `json:"slots,omitempty"`
}

// LocaleConfig carries the locale-specific half of a skill configuration:
// localized answer sets, shared variables and widget content templates.
type LocaleConfig struct {
	Lang          string                  `json:"lang"`
	Answers       map[string]AnswerSet    `json:"answers"`
	CommonAnswers map[string]AnswerSet    `json:"common_answers"`
	Variables     map[string]string       `json:"variables"`
	WidgetContent map[string]string       `json:"widget_content"`
	Actions       map[string]LocaleAction `json:"actions"`
}

// LocaleAction is the per-action locale payload merged into an action config.
type LocaleAction struct {
	Utterances []string          `json:"utterances"`
	Answers    AnswerSet         `json:"answers"`
	Variables  map[string]string `json:"variables"`
}

// ExtraContext is the ambient block handed to skill actions alongside the
// conversation context.
type ExtraContext struct {
	Lang      string `json:"lang"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Timestamp int64  `json:"timestamp"`
	WeekDay   string `json:"week_day"`
}

// NewExtraContext captures the ambient block at the given instant.
func NewExtraContext(lang string, now time.Time) ExtraContext {
	return ExtraContext{
		Lang:      lang,
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04:05"),
		Timestamp: now.Unix(),
		WeekDay:   now.Weekday().String(),
	}
}

// ActionParams is the merged per-turn process context the dispatcher hands to
// the answer resolver and to skill action code.
type ActionParams struct {
	Lang            string            `json:"lang"`
	Utterance       string            `json:"utterance"`
	ActionArguments map[string]string `json:"action_arguments"`
	Entities        []Entity          `json:"entities"`
	Sentiment       Sentiment         `json:"sentiment"`
	ContextName     string            `json:"context_name"`
	SkillName       string            `json:"skill_name"`
	ActionName      string            `json:"action_name"`
	Context         Context           `json:"context"`
	SkillConfig     *SkillConfig      `json:"skill_config"`
	SkillConfigPath string            `json:"skill_config_path"`
	ExtraContext    ExtraContext      `json:"extra_context"`
}

// Widget is a structured, cacheable UI artifact keyed by an opaque id. The
// presentation layer fetches it lazily; payloads must be re-fetchable by id
// without re-invoking the skill.
type Widget struct {
	ID         string         `json:"id"`
	ActionName string         `json:"actionName"`
	Widget     string         `json:"widget"`
	Payload    map[string]any `json:"componentTree,omitempty"`
	OnFetch    string         `json:"onFetch,omitempty"`
}
