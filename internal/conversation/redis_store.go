package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "agribot:conversation:"

	scanBatch = 100
)

// RedisStore keeps JSON snapshots of states in Redis so every worker process
// sees the same sessions.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisStore) Get(ctx context.Context, userID string) (*State, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", userID, err)
	}
	return decodeState(val)
}

func (r *RedisStore) Put(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", state.UserID, err)
	}
	if err := r.client.Set(ctx, r.key(state.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("put state %s: %w", state.UserID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete state %s: %w", userID, err)
	}
	return nil
}

// List scans the key prefix. Keys deleted between the scan and the read are
// skipped.
func (r *RedisStore) List(ctx context.Context) ([]*State, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan states: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	states := make([]*State, 0, len(keys))
	if len(keys) == 0 {
		return states, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read states: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		state, err := decodeState([]byte(raw))
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func decodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &s, nil
}
