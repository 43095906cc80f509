package duty

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"

	errx "github.com/lumen-assistant/core/internal/core/error"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// Type names a language-model sub-task. The set is closed; the registry owns
// one duty instance per type.
type Type string

const (
	SkillRouting       Type = "skill_routing"
	ActionRouting      Type = "action_routing"
	SlotFilling        Type = "slot_filling"
	ArgumentExtraction Type = "argument_extraction"
	CustomNER          Type = "custom_ner"
	Paraphrase         Type = "paraphrase"
)

// State is the lifecycle of one duty instance. Executing is a transient
// sub-state entered from Ready; a failed execution lands back in Ready.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateExecuting
)

// SessionShape selects the generation call a session supports: a chat
// history array or a single-prompt continuation. Supplying the wrong input
// shape is a contract violation, not something to coerce.
type SessionShape int

const (
	ShapeChat SessionShape = iota
	ShapeCompletion
)

// Input is one duty execution request. Exactly one of History or Prompt is
// set, matching the duty's session shape. Data overlays the duty's prompt
// template values for this call. Grammar, when set, is a JSON schema the
// output must validate against (local binding only).
type Input struct {
	History []*schema.Message
	Prompt  string
	Data    map[string]string
	Grammar string
}

// Usage reports token consumption for one generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is the record a successful execution returns. Callers receive nil
// when the duty is unavailable this turn and must degrade.
type Result struct {
	DutyType         Type   `json:"duty_type"`
	SystemPrompt     string `json:"system_prompt"`
	Input            string `json:"input"`
	Output           string `json:"output"`
	UsedInputTokens  int    `json:"used_input_tokens"`
	UsedOutputTokens int    `json:"used_output_tokens"`
}

// Spec is the static configuration of one duty: its prompt template, session
// shape and completion parameters. The token budget is split between thought
// tokens and output tokens for backends that reason before answering.
type Spec struct {
	SystemPrompt  string
	PromptData    map[string]string
	Shape         SessionShape
	Temperature   float32
	TopP          float32
	MaxTokens     int
	ThoughtBudget int
	Timeout       time.Duration
}

// Session is a persistent local generation session. It is stateful: the duty
// serializes all calls against it.
type Session interface {
	Shape() SessionShape
	GenerateChat(ctx context.Context, system string, history []*schema.Message) (string, Usage, error)
	GenerateCompletion(ctx context.Context, system, prompt string) (string, Usage, error)
	Close() error
}

// SessionOpener is the local provider binding: it loads one persistent
// session per duty so model and context loading is amortized across calls.
type SessionOpener interface {
	OpenSession(ctx context.Context, spec Spec) (Session, error)
}

// Completer is the remote provider binding: one stateless request per call.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, Usage, error)
}

// CompletionRequest carries the per-call parameters of a remote completion.
type CompletionRequest struct {
	System      string
	History     []*schema.Message
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Duty is one named sub-task bound to either a local session or a remote
// provider. Exactly one of opener/completer is non-nil.
type Duty struct {
	typ       Type
	spec      Spec
	opener    SessionOpener
	completer Completer

	// mu serializes local session use and all state transitions. Remote
	// executions only hold it for state bookkeeping, never across the call.
	mu      sync.Mutex
	state   State
	session Session
}

// New creates a duty bound to the given provider. The session, if any, is
// created lazily on the first execution.
func New(typ Type, spec Spec, opener SessionOpener, completer Completer) *Duty {
	return &Duty{typ: typ, spec: spec, opener: opener, completer: completer}
}

// Type returns the duty's type.
func (d *Duty) Type() Type { return d.typ }

// State returns the current lifecycle state.
func (d *Duty) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Execute runs the duty once. Provider failures (timeout, transport error,
// non-conforming output) are logged and absorbed as a nil result; contract
// and lifecycle violations surface as errors to the immediate caller.
func (d *Duty) Execute(ctx context.Context, in Input) (*Result, error) {
	if err := d.checkShape(in); err != nil {
		return nil, err
	}
	system := renderSystem(d.spec, in.Data)

	if d.completer != nil {
		return d.executeRemote(ctx, system, in)
	}
	return d.executeLocal(ctx, system, in)
}

func (d *Duty) checkShape(in Input) error {
	hasHistory := len(in.History) > 0
	hasPrompt := in.Prompt != ""
	if hasHistory == hasPrompt {
		return errx.WrapContract(fmt.Errorf("%w: duty %s requires exactly one of history or prompt", errx.ErrSessionShape, d.typ))
	}
	if d.spec.Shape == ShapeChat && !hasHistory {
		return errx.WrapContract(fmt.Errorf("%w: duty %s uses a chat session, got a single prompt", errx.ErrSessionShape, d.typ))
	}
	if d.spec.Shape == ShapeCompletion && hasHistory {
		return errx.WrapContract(fmt.Errorf("%w: duty %s uses a completion session, got a history array", errx.ErrSessionShape, d.typ))
	}
	return nil
}

func (d *Duty) executeLocal(ctx context.Context, system string, in Input) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureSessionLocked(ctx); err != nil {
		return nil, err
	}

	d.state = StateExecuting
	defer func() { d.state = StateReady }()

	runCtx := ctx
	if d.spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.spec.Timeout)
		defer cancel()
	}

	var (
		out   string
		usage Usage
		err   error
	)
	if d.spec.Shape == ShapeChat {
		out, usage, err = d.session.GenerateChat(runCtx, system, in.History)
	} else {
		out, usage, err = d.session.GenerateCompletion(runCtx, system, in.Prompt)
	}
	if err != nil {
		logx.Warn().Err(err).Str("duty", string(d.typ)).Msg("duty execution failed")
		return nil, nil
	}
	if in.Grammar != "" {
		if err := validateGrammar(in.Grammar, out); err != nil {
			logx.Warn().Err(err).Str("duty", string(d.typ)).Msg("duty output rejected by grammar")
			return nil, nil
		}
	}
	return d.result(system, in, out, usage), nil
}

func (d *Duty) executeRemote(ctx context.Context, system string, in Input) (*Result, error) {
	d.mu.Lock()
	if d.state == StateUninitialized {
		// Remote duties have no session; they become ready on first use.
		d.state = StateReady
	}
	d.mu.Unlock()

	runCtx := ctx
	if d.spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.spec.Timeout)
		defer cancel()
	}

	out, usage, err := d.completer.Complete(runCtx, CompletionRequest{
		System:      system,
		History:     in.History,
		Prompt:      in.Prompt,
		Temperature: d.spec.Temperature,
		MaxTokens:   d.spec.MaxTokens,
	})
	if err != nil {
		logx.Warn().Err(err).Str("duty", string(d.typ)).Msg("remote duty execution failed")
		return nil, nil
	}
	return d.result(system, in, out, usage), nil
}

// ensureSessionLocked lazily opens the persistent session. Callers hold mu.
func (d *Duty) ensureSessionLocked(ctx context.Context) error {
	if d.state == StateReady && d.session != nil {
		return nil
	}
	if d.state == StateInitializing {
		return errx.WrapContract(fmt.Errorf("%w: duty %s is initializing", errx.ErrSessionNotReady, d.typ))
	}
	d.state = StateInitializing
	s, err := d.opener.OpenSession(ctx, d.spec)
	if err != nil {
		d.state = StateUninitialized
		return fmt.Errorf("open session for duty %s: %w", d.typ, err)
	}
	d.session = s
	d.state = StateReady
	return nil
}

// ForceReinit disposes the current session and creates a fresh one. This is
// the only supported abort-and-restart mechanism; sessions are never torn
// down implicitly, to preserve multi-turn grounding.
func (d *Duty) ForceReinit(ctx context.Context) error {
	if d.opener == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		if err := d.session.Close(); err != nil {
			logx.Warn().Err(err).Str("duty", string(d.typ)).Msg("closing previous session failed")
		}
		d.session = nil
	}
	d.state = StateInitializing
	s, err := d.opener.OpenSession(ctx, d.spec)
	if err != nil {
		d.state = StateUninitialized
		return fmt.Errorf("reinit duty %s: %w", d.typ, err)
	}
	d.session = s
	d.state = StateReady
	return nil
}

func (d *Duty) result(system string, in Input, out string, usage Usage) *Result {
	return &Result{
		DutyType:         d.typ,
		SystemPrompt:     system,
		Input:            inputText(in),
		Output:           out,
		UsedInputTokens:  usage.InputTokens,
		UsedOutputTokens: usage.OutputTokens,
	}
}

func inputText(in Input) string {
	if in.Prompt != "" {
		return in.Prompt
	}
	for i := len(in.History) - 1; i >= 0; i-- {
		if m := in.History[i]; m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

func validateGrammar(grammar, output string) error {
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(grammar),
		gojsonschema.NewStringLoader(output),
	)
	if err != nil {
		return fmt.Errorf("grammar validation: %w", err)
	}
	if !res.Valid() {
		return fmt.Errorf("output does not conform to grammar: %v", res.Errors())
	}
	return nil
}
