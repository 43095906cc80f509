package model

import (
	"encoding/json"
	"fmt"
)

// AnswerConfig is one configured answer: either a plain string or a
// text/speech pair. The two cases are matched explicitly at substitution and
// emission time; there is no implicit coercion between them.
type AnswerConfig interface {
	isAnswer()
}

// PlainAnswer is a bare answer string.
type PlainAnswer string

func (PlainAnswer) isAnswer() {}

// RichAnswer carries independent text and speech renditions.
type RichAnswer struct {
	Text   string `json:"text"`
	Speech string `json:"speech"`
}

func (RichAnswer) isAnswer() {}

// AnswerSet is the candidate list declared under one answer key. A single
// string or object in the locale JSON decodes as a one-element set.
type AnswerSet []AnswerConfig

// UnmarshalJSON accepts a string, an object, or an array of either.
func (s *AnswerSet) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*s = AnswerSet{PlainAnswer(v)}
		return nil
	case map[string]any:
		a, err := decodeRichAnswer(v)
		if err != nil {
			return err
		}
		*s = AnswerSet{a}
		return nil
	case []any:
		out := make(AnswerSet, 0, len(v))
		for i, item := range v {
			switch it := item.(type) {
			case string:
				out = append(out, PlainAnswer(it))
			case map[string]any:
				a, err := decodeRichAnswer(it)
				if err != nil {
					return fmt.Errorf("answer %d: %w", i, err)
				}
				out = append(out, a)
			default:
				return fmt.Errorf("answer %d: unsupported shape %T", i, item)
			}
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("unsupported answer config shape %T", raw)
	}
}

// MarshalJSON renders the set back to the locale file layout.
func (s AnswerSet) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(s))
	for _, a := range s {
		switch v := a.(type) {
		case PlainAnswer:
			out = append(out, string(v))
		case RichAnswer:
			out = append(out, v)
		default:
			return nil, fmt.Errorf("unsupported answer config %T", a)
		}
	}
	return json.Marshal(out)
}

func decodeRichAnswer(m map[string]any) (RichAnswer, error) {
	var a RichAnswer
	if t, ok := m["text"]; ok {
		s, ok := t.(string)
		if !ok {
			return a, fmt.Errorf("answer text is not a string")
		}
		a.Text = s
	}
	if sp, ok := m["speech"]; ok {
		s, ok := sp.(string)
		if !ok {
			return a, fmt.Errorf("answer speech is not a string")
		}
		a.Speech = s
	}
	return a, nil
}
