package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemoryCursor keeps the cursor in process. A restart replays from zero.
type MemoryCursor struct {
	mu  sync.Mutex
	seq uint64
}

func NewMemoryCursor() *MemoryCursor { return &MemoryCursor{} }

func (c *MemoryCursor) Load(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, nil
}

func (c *MemoryCursor) Save(_ context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
	return nil
}

// DefaultCursorKey is the redis key holding the relay position.
const DefaultCursorKey = "certify:audit:relay:cursor"

// RedisCursor stores the cursor as a decimal string under one key.
type RedisCursor struct {
	client *redis.Client
	key    string
}

func NewRedisCursor(client *redis.Client, key string) *RedisCursor {
	if key == "" {
		key = DefaultCursorKey
	}
	return &RedisCursor{client: client, key: key}
}

func (c *RedisCursor) Load(ctx context.Context) (uint64, error) {
	raw, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cursor %q: %w", raw, err)
	}
	return seq, nil
}

func (c *RedisCursor) Save(ctx context.Context, seq uint64) error {
	return c.client.Set(ctx, c.key, strconv.FormatUint(seq, 10), 0).Err()
}
