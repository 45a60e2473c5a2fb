package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/upvault/vaultd/internal/domain"
)

const stateTTL = 30 * time.Second

// StateCache implements domain.VaultStateCache using JSON-serialized vault
// snapshots at key "vault:{id}:state" with a short TTL, so the API read path
// serves slightly stale valuations instead of hitting the feeds.
type StateCache struct {
	rdb *redis.Client
}

var _ domain.VaultStateCache = (*StateCache)(nil)

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying()}
}

func stateKey(vaultID string) string {
	return "vault:" + vaultID + ":state"
}

// cachedState is the wire form: big.Int fields as decimal strings.
type cachedState struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Position    string    `json:"position"`
	TotalShares string    `json:"total_shares"`
	SoldAmount  string    `json:"sold_amount"`
	Profit      string    `json:"profit"`
	PoolSize    string    `json:"pool_size"`
	MaxCap      string    `json:"max_cap"`
	TakenAt     time.Time `json:"taken_at"`
}

// SetState stores the latest snapshot for a vault.
func (sc *StateCache) SetState(ctx context.Context, state domain.VaultState) error {
	data, err := json.Marshal(cachedState{
		ID:          state.ID,
		Name:        state.Name,
		Position:    string(state.Position),
		TotalShares: state.TotalShares.String(),
		SoldAmount:  state.SoldAmount.String(),
		Profit:      state.Profit.String(),
		PoolSize:    state.PoolSize.String(),
		MaxCap:      state.MaxCap.String(),
		TakenAt:     state.TakenAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal state %s: %w", state.ID, err)
	}
	if err := sc.rdb.Set(ctx, stateKey(state.ID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("redis: set state %s: %w", state.ID, err)
	}
	return nil
}

// GetState retrieves the cached snapshot for a vault. It returns
// domain.ErrNotFound when the key is missing or expired.
func (sc *StateCache) GetState(ctx context.Context, vaultID string) (domain.VaultState, error) {
	data, err := sc.rdb.Get(ctx, stateKey(vaultID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.VaultState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("redis: get state %s: %w", vaultID, err)
	}

	var cs cachedState
	if err := json.Unmarshal(data, &cs); err != nil {
		return domain.VaultState{}, fmt.Errorf("redis: unmarshal state %s: %w", vaultID, err)
	}

	st := domain.VaultState{
		ID:       cs.ID,
		Name:     cs.Name,
		Position: domain.Position(cs.Position),
		TakenAt:  cs.TakenAt,
	}
	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&st.TotalShares, cs.TotalShares}, {&st.SoldAmount, cs.SoldAmount},
		{&st.Profit, cs.Profit}, {&st.PoolSize, cs.PoolSize}, {&st.MaxCap, cs.MaxCap},
	} {
		v, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return domain.VaultState{}, fmt.Errorf("redis: state %s: bad numeric %q", vaultID, f.src)
		}
		*f.dst = v
	}
	return st, nil
}
