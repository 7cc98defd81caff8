package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibeguard/sentinel/config"
)

const stateDocKey = "sentinel:state"

// StateRepo keeps the document under a single key.
type StateRepo struct {
	rdb *redis.Client
}

func NewStateRepo(cfg *config.RedisConfig) (*StateRepo, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("can't parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("can't connect to redis: %w", err)
	}
	return &StateRepo{rdb: rdb}, nil
}

func (r *StateRepo) Load(ctx context.Context) ([]byte, bool, error) {
	blob, err := r.rdb.Get(ctx, stateDocKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("can't load state document: %w", err)
	}
	return blob, true, nil
}

func (r *StateRepo) Save(ctx context.Context, blob []byte) error {
	if err := r.rdb.Set(ctx, stateDocKey, blob, 0).Err(); err != nil {
		return fmt.Errorf("can't save state document: %w", err)
	}
	return nil
}

func (r *StateRepo) Close() error {
	return r.rdb.Close()
}
