package model

import "context"

// ContextRepository persists the cross-turn conversation state so a restart
// does not lose grounding.
type ContextRepository interface {
	// AppendTurn adds a folded turn to the conversation history.
	AppendTurn(ctx context.Context, conversationID string, turn *Turn) error

	// LoadTurns retrieves the turn history for a conversation.
	LoadTurns(ctx context.Context, conversationID string) ([]*Turn, error)

	// SaveData stores the free-form data map that survives context resets.
	SaveData(ctx context.Context, conversationID string, data map[string]any) error

	// LoadData retrieves the persisted data map; missing keys yield an empty map.
	LoadData(ctx context.Context, conversationID string) (map[string]any, error)

	// Clear removes all persisted state for a conversation.
	Clear(ctx context.Context, conversationID string) error
}

// WidgetStore caches widget payloads under their opaque id so the
// presentation layer can re-fetch them idempotently.
type WidgetStore interface {
	Put(ctx context.Context, w *Widget) error
	Get(ctx context.Context, id string) (*Widget, bool, error)
}
