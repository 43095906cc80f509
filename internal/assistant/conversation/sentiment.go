package conversation

import (
	"strings"

	"github.com/lumen-assistant/core/internal/assistant/model"
)

// LexiconSentiment is a small valence-lexicon scorer. It exists so the
// accumulator always has a sentiment collaborator even when no model backend
// is configured; callers wanting model-grade sentiment plug their own
// SentimentAnalyzer.
type LexiconSentiment struct {
	valence map[string]float64
}

// NewLexiconSentiment builds the analyzer with the built-in English lexicon.
func NewLexiconSentiment() *LexiconSentiment {
	return &LexiconSentiment{valence: defaultValence}
}

// Analyze sums token valences and votes on the sign of the total.
func (a *LexiconSentiment) Analyze(utterance string) model.Sentiment {
	var score float64
	for _, tok := range strings.Fields(strings.ToLower(utterance)) {
		tok = strings.Trim(tok, ".,!?;:'\"")
		if v, ok := a.valence[tok]; ok {
			score += v
		}
	}
	vote := model.SentimentNeutral
	switch {
	case score > 0.5:
		vote = model.SentimentPositive
	case score < -0.5:
		vote = model.SentimentNegative
	}
	return model.Sentiment{Vote: vote, Score: score}
}

var defaultValence = map[string]float64{
	"amazing":   3,
	"awesome":   3,
	"good":      2,
	"great":     3,
	"happy":     2,
	"love":      3,
	"nice":      2,
	"perfect":   3,
	"please":    1,
	"thank":     2,
	"thanks":    2,
	"wonderful": 3,
	"yes":       1,

	"angry":    -2,
	"annoying": -2,
	"bad":      -2,
	"broken":   -2,
	"hate":     -3,
	"horrible": -3,
	"no":       -1,
	"sad":      -2,
	"stupid":   -2,
	"terrible": -3,
	"useless":  -2,
	"wrong":    -1,
}

var _ SentimentAnalyzer = (*LexiconSentiment)(nil)
