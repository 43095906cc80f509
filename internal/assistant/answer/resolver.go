package answer

import (
	"math/rand"
	"regexp"
	"time"

	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Layers are the three answer sources, highest priority first: the active
// skill's locale answers, its common answers, then the global fallback set.
type Layers struct {
	ActionAnswers map[string]model.AnswerSet
	CommonAnswers map[string]model.AnswerSet
	GlobalAnswers map[string]model.AnswerSet
}

// lookup returns the first layer hit for a key, keeping the priority order
// auditable in one place.
func (l Layers) lookup(key string) (model.AnswerSet, bool) {
	if set, ok := l.ActionAnswers[key]; ok && len(set) > 0 {
		return set, true
	}
	if set, ok := l.CommonAnswers[key]; ok && len(set) > 0 {
		return set, true
	}
	if set, ok := l.GlobalAnswers[key]; ok && len(set) > 0 {
		return set, true
	}
	return nil, false
}

// Resolver templates a user-facing reply from the configured answer sets.
type Resolver struct {
	layers    Layers
	variables map[string]string
	rng       *rand.Rand
}

// NewResolver builds a resolver over the three answer layers and the
// locale-level variables of the active skill.
func NewResolver(layers Layers, variables map[string]string) *Resolver {
	return &Resolver{
		layers:    layers,
		variables: variables,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve picks and templates an answer for a key. An unknown key comes back
// as the key string itself; resolution never fails.
//
// Substitution priority, lowest to highest: turn entities, locale variables,
// explicit per-turn data, action arguments.
func (r *Resolver) Resolve(key string, turn model.Turn, data map[string]string) model.AnswerConfig {
	set, ok := r.layers.lookup(key)
	if !ok {
		logx.Debug().Str("key", key).Msg("answer key not found; returning key as text")
		return model.PlainAnswer(key)
	}

	picked := r.sample(set)
	subs := r.substitutions(turn, data)

	if len(subs) == 0 && hasPlaceholder(picked) {
		// Fallback pass: prefer a candidate that needs no substitution at
		// all. When none exists the placeholder-bearing answer is emitted
		// verbatim; that is accepted, not fatal.
		if plain := withoutPlaceholders(set); len(plain) > 0 {
			picked = r.sample(plain)
		}
	}

	return substitute(picked, subs)
}

func (r *Resolver) sample(set model.AnswerSet) model.AnswerConfig {
	if len(set) == 1 {
		return set[0]
	}
	return set[r.rng.Intn(len(set))]
}

func (r *Resolver) substitutions(turn model.Turn, data map[string]string) map[string]string {
	subs := make(map[string]string)
	for _, e := range turn.Entities {
		subs[e.Type] = e.Value
	}
	for k, v := range r.variables {
		subs[k] = v
	}
	for k, v := range data {
		subs[k] = v
	}
	for k, v := range turn.ActionArguments {
		subs[k] = v
	}
	return subs
}

// substitute performs a literal, non-recursive, all-occurrences replace per
// key. Unknown placeholders stay in the text.
func substitute(a model.AnswerConfig, subs map[string]string) model.AnswerConfig {
	if len(subs) == 0 {
		return a
	}
	switch v := a.(type) {
	case model.PlainAnswer:
		return model.PlainAnswer(substituteString(string(v), subs))
	case model.RichAnswer:
		return model.RichAnswer{
			Text:   substituteString(v.Text, subs),
			Speech: substituteString(v.Speech, subs),
		}
	default:
		return a
	}
}

func substituteString(s string, subs map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := subs[name]; ok {
			return v
		}
		return m
	})
}

func hasPlaceholder(a model.AnswerConfig) bool {
	switch v := a.(type) {
	case model.PlainAnswer:
		return placeholderRe.MatchString(string(v))
	case model.RichAnswer:
		return placeholderRe.MatchString(v.Text) || placeholderRe.MatchString(v.Speech)
	default:
		return false
	}
}

func withoutPlaceholders(set model.AnswerSet) model.AnswerSet {
	out := make(model.AnswerSet, 0, len(set))
	for _, a := range set {
		if !hasPlaceholder(a) {
			out = append(out, a)
		}
	}
	return out
}
