package answer

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/lumen-assistant/core/internal/assistant/model"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// EmitInput is one outbound answer: a resolved answer keyed by Key, an
// optional widget payload, and an optional id of a prior message to replace.
type EmitInput struct {
	Key              string
	Answer           model.AnswerConfig
	Widget           *model.Widget
	ReplaceMessageID string
}

// Emitter writes answer records to the transport boundary, one
// newline-delimited JSON record per emission. It does not format the
// transport frame beyond the JSON-serializable answer object.
type Emitter struct {
	mu    sync.Mutex
	w     io.Writer
	muted bool
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Mute suppresses exactly the next emission. Used when resolving a proactive
// widget fetch that should not itself produce new speech.
func (e *Emitter) Mute() {
	e.mu.Lock()
	e.muted = true
	e.mu.Unlock()
}

// Unmute clears a pending mute that was never consumed, so a failed muted
// operation cannot swallow an unrelated later emission.
func (e *Emitter) Unmute() {
	e.mu.Lock()
	e.muted = false
	e.mu.Unlock()
}

// Muted reports whether the next emission will be suppressed.
func (e *Emitter) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

type outputRecord struct {
	Codes            string        `json:"codes"`
	Answer           any           `json:"answer"`
	ReplaceMessageID string        `json:"replaceMessageId,omitempty"`
	Widget           *model.Widget `json:"widget,omitempty"`
}

type answerRecord struct {
	model.ActionParams
	Output outputRecord `json:"output"`
}

// Emit writes one answer record and returns an opaque message identifier the
// caller can later use to replace the message. A muted emitter consumes the
// mute flag and skips the write, still handing back an identifier.
func (e *Emitter) Emit(params model.ActionParams, in EmitInput) (string, error) {
	messageID := in.ReplaceMessageID
	if messageID == "" {
		if in.Widget != nil {
			messageID = in.Widget.ID
		} else {
			messageID = newMessageID()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.muted {
		e.muted = false
		logx.Debug().Str("key", in.Key).Msg("emission muted")
		return messageID, nil
	}

	codes := in.Key
	if in.Widget != nil && in.Key == "" {
		codes = "widget"
	}
	record := answerRecord{
		ActionParams: params,
		Output: outputRecord{
			Codes:            codes,
			Answer:           answerJSON(in.Answer),
			ReplaceMessageID: in.ReplaceMessageID,
			Widget:           in.Widget,
		},
	}

	b, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal answer record: %w", err)
	}
	if _, err := e.w.Write(append(b, '\n')); err != nil {
		return "", fmt.Errorf("write answer record: %w", err)
	}
	return messageID, nil
}

// answerJSON flattens the answer sum type into its wire shape.
func answerJSON(a model.AnswerConfig) any {
	switch v := a.(type) {
	case model.PlainAnswer:
		return string(v)
	case model.RichAnswer:
		return v
	default:
		return ""
	}
}

func newMessageID() string {
	return fmt.Sprintf("msg-%d-%x", time.Now().UnixMilli(), rand.Int63n(0xffffff))
}
