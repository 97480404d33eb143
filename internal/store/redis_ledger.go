package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-trip-pipeline/internal/model"
)

// RedisLedger keeps one JSON value per pipeline id under a key prefix.
type RedisLedger struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisLedger(rdb *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "trip-pipeline:processed:"
	}
	return &RedisLedger{rdb: rdb, prefix: prefix}
}

func (l *RedisLedger) Get(ctx context.Context, pipelineID string) (model.LedgerEntry, bool, error) {
	raw, err := l.rdb.Get(ctx, l.prefix+pipelineID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	var e model.LedgerEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.LedgerEntry{}, false, fmt.Errorf("decode ledger entry %s: %w", pipelineID, err)
	}
	return e, true, nil
}

// Put overwrites the entry; SET is naturally idempotent.
func (l *RedisLedger) Put(ctx context.Context, e model.LedgerEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.rdb.Set(ctx, l.prefix+e.PipelineID, raw, 0).Err()
}
