package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const metricsKey = "scamscreener:funnel-metrics"

// RedisPersister stores the counter state as one JSON value with no TTL so
// metrics survive restarts.
type RedisPersister struct {
	rdb *redis.Client
}

var _ Persister = (*RedisPersister)(nil)

// NewRedisPersister wraps an already-connected client.
func NewRedisPersister(rdb *redis.Client) *RedisPersister {
	return &RedisPersister{rdb: rdb}
}

// Load reads the persisted state. A missing key is a fresh state, not an
// error.
func (p *RedisPersister) Load(ctx context.Context) (State, error) {
	data, err := p.rdb.Get(ctx, metricsKey).Bytes()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load feedback metrics: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parse feedback metrics: %w", err)
	}
	return state, nil
}

// Save writes the state back.
func (p *RedisPersister) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode feedback metrics: %w", err)
	}
	if err := p.rdb.Set(ctx, metricsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save feedback metrics: %w", err)
	}
	return nil
}
