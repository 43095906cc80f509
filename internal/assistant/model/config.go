package model

// ProviderKind selects the backend executing duties. It is a process-wide
// setting, not a per-call one.
type ProviderKind string

const (
	ProviderLocal  ProviderKind = "local"
	ProviderRemote ProviderKind = "remote"
)

// ================ Config ================
type ProviderConfig struct {
	Kind string `envconfig:"PROVIDER" default:"local"`

	// Remote (Gemini) binding
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
	Model   string `envconfig:"PROVIDER_MODEL" default:"gemini-2.5-flash-lite"`

	// Local (llama.cpp) binding
	ModelPath   string `envconfig:"LOCAL_MODEL_PATH"`
	ContextSize int    `envconfig:"LOCAL_CONTEXT_SIZE" default:"4096"`
	GPULayers   int    `envconfig:"LOCAL_GPU_LAYERS" default:"0"`
}

// ParseProviderKind normalises the configured value; unknown values fall back
// to the local binding so the assistant can still start offline.
func ParseProviderKind(v string) ProviderKind {
	if ProviderKind(v) == ProviderRemote {
		return ProviderRemote
	}
	return ProviderLocal
}

type DutyConfig struct {
	Temperature    float32 `envconfig:"DUTY_TEMPERATURE" default:"0.1"`
	TopP           float32 `envconfig:"DUTY_TOP_P" default:"0.95"`
	MaxTokens      int     `envconfig:"DUTY_MAX_TOKENS" default:"1024"`
	ThoughtBudget  int     `envconfig:"DUTY_THOUGHT_BUDGET" default:"512"`
	TimeoutSeconds int     `envconfig:"DUTY_TIMEOUT_SECONDS" default:"45"`
}

type ConversationConfig struct {
	Lang string `envconfig:"CONVERSATION_LANG" default:"en"`
	TTL  string `envconfig:"CONVERSATION_TTL" default:"15m"`
	NLU  struct {
		MaxTurns int `envconfig:"CONVERSATION_NLU_MAX_TURNS" default:"5"`
	}
}
