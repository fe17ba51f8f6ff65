package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Chative-reservations/server/internal/agent/model"
	errx "github.com/Chative-reservations/server/internal/core/error"
	logx "github.com/Chative-reservations/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisStateStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStateStore(rdb redis.Cmdable, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStateStore) stateKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:state", conversationID)
}

func (r *RedisStateStore) Get(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	key := r.stateKey(conversationID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation state from redis")
		return nil, errx.WrapRedis(err)
	}

	var st model.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to unmarshal conversation state")
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	return &st, nil
}

// Save writes the state with SET EX so every save restarts the idle TTL.
func (r *RedisStateStore) Save(ctx context.Context, st *model.ConversationState) error {
	if st == nil || st.ID == "" {
		return errx.InvalidInput("conversation state without id")
	}
	b, err := json.Marshal(st)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", st.ID).Msg("failed to marshal conversation state")
		return fmt.Errorf("marshal conversation state: %w", err)
	}
	key := r.stateKey(st.ID)

	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save conversation state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisStateStore) Delete(ctx context.Context, conversationID string) error {
	key := r.stateKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete conversation state from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.StateStore = (*RedisStateStore)(nil)
