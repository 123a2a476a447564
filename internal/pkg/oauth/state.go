package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/calmness_server/internal/pkg/apperr"
)

const (
	stateKeyPrefix = "oauth:state:"
	stateTTL       = 10 * time.Minute
)

var ErrInvalidState = apperr.BadRequest("Invalid or expired state")

// StateStore OAuth state 的存储与一次性校验
type StateStore struct {
	rdb *redis.Client
}

func NewStateStore(rdb *redis.Client) *StateStore {
	return &StateStore{rdb: rdb}
}

// StateData state 绑定的上下文
type StateData struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri"`
}

// GenerateState 生成 256 位随机 state 并记录 provider 与回跳地址
func (s *StateStore) GenerateState(ctx context.Context, provider, redirectURI string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	state := hex.EncodeToString(buf)

	payload, err := json.Marshal(StateData{Provider: provider, RedirectURI: redirectURI})
	if err != nil {
		return "", err
	}

	if err := s.rdb.Set(ctx, stateKeyPrefix+state, payload, stateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	return state, nil
}

// ValidateState 校验并消费 state，provider 不一致同样视为无效
func (s *StateStore) ValidateState(ctx context.Context, state, provider string) (*StateData, error) {
	if state == "" {
		return nil, apperr.Wrap(ErrInvalidState, fmt.Errorf("empty state parameter"))
	}

	key := stateKeyPrefix + state

	var raw string
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrInvalidState
		}
		if err != nil {
			return fmt.Errorf("failed to get state: %w", err)
		}
		raw = val

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}

	var data StateData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, apperr.Wrap(ErrInvalidState, err)
	}
	if data.Provider != provider {
		return nil, apperr.Wrap(ErrInvalidState, fmt.Errorf("state issued for %q", data.Provider))
	}
	return &data, nil
}
