package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumen-assistant/core/internal/assistant/model"
	errx "github.com/lumen-assistant/core/internal/core/error"
	logx "github.com/lumen-assistant/core/pkg/logger"
)

// RedisContextRepository persists folded turns and the reset-surviving data
// map of a conversation. Turn history expires with the conversation TTL; the
// data map has no TTL because it outlives context switches by design.
type RedisContextRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisContextRepository(rdb redis.Cmdable, ttl time.Duration) *RedisContextRepository {
	return &RedisContextRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisContextRepository) turnsKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:turns", conversationID)
}

func (r *RedisContextRepository) dataKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:data", conversationID)
}

func (r *RedisContextRepository) AppendTurn(ctx context.Context, conversationID string, turn *model.Turn) error {
	b, err := json.Marshal(turn)
	if err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := r.turnsKey(conversationID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on conversation key")
		}
	}
	return nil
}

func (r *RedisContextRepository) LoadTurns(ctx context.Context, conversationID string) ([]*model.Turn, error) {
	key := r.turnsKey(conversationID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []*model.Turn{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load turn history from redis")
		return nil, errx.WrapRedis(err)
	}

	turns := make([]*model.Turn, 0, len(rows))
	for i, s := range rows {
		var t model.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		turns = append(turns, &t)
	}
	return turns, nil
}

func (r *RedisContextRepository) SaveData(ctx context.Context, conversationID string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal context data: %w", err)
	}
	if err := r.rdb.Set(ctx, r.dataKey(conversationID), b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to save context data")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisContextRepository) LoadData(ctx context.Context, conversationID string) (map[string]any, error) {
	s, err := r.rdb.Get(ctx, r.dataKey(conversationID)).Result()
	if err != nil {
		if err == redis.Nil {
			return map[string]any{}, nil
		}
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to load context data")
		return nil, errx.WrapRedis(err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, fmt.Errorf("unmarshal context data: %w", err)
	}
	return data, nil
}

func (r *RedisContextRepository) Clear(ctx context.Context, conversationID string) error {
	if err := r.rdb.Del(ctx, r.turnsKey(conversationID), r.dataKey(conversationID)).Err(); err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to clear conversation state")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.ContextRepository = (*RedisContextRepository)(nil)
