package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumen-assistant/core/internal/assistant/model"
	errx "github.com/lumen-assistant/core/internal/core/error"
)

// RedisWidgetStore caches widget payloads under their opaque id so the
// presentation layer can re-fetch them without re-invoking the skill.
type RedisWidgetStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisWidgetStore(rdb redis.Cmdable, ttl time.Duration) *RedisWidgetStore {
	return &RedisWidgetStore{rdb: rdb, ttl: ttl}
}

func (s *RedisWidgetStore) key(id string) string {
	return fmt.Sprintf("widget:%s:payload", id)
}

func (s *RedisWidgetStore) Put(ctx context.Context, w *model.Widget) error {
	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal widget: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(w.ID), b, s.ttl).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisWidgetStore) Get(ctx context.Context, id string) (*model.Widget, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, errx.WrapRedis(err)
	}
	var w model.Widget
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, false, fmt.Errorf("unmarshal widget %s: %w", id, err)
	}
	return &w, true, nil
}

var _ model.WidgetStore = (*RedisWidgetStore)(nil)

// MemoryWidgetStore is the in-process store used by tests and single-node
// setups without Redis.
type MemoryWidgetStore struct {
	mu      sync.RWMutex
	widgets map[string]*model.Widget
}

func NewMemoryWidgetStore() *MemoryWidgetStore {
	return &MemoryWidgetStore{widgets: make(map[string]*model.Widget)}
}

func (s *MemoryWidgetStore) Put(_ context.Context, w *model.Widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets[w.ID] = w
	return nil
}

func (s *MemoryWidgetStore) Get(_ context.Context, id string) (*model.Widget, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.widgets[id]
	return w, ok, nil
}

var _ model.WidgetStore = (*MemoryWidgetStore)(nil)
