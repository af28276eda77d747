package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

const keyPrefix = "certify:content:"

// Redis stores blobs as plain string values. Content is immutable, so
// writes use SETNX and never expire.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Put(ctx context.Context, blob []byte) (domain.ContentID, error) {
	id := IDFor(blob)
	if err := s.client.SetNX(ctx, keyPrefix+string(id), blob, 0).Err(); err != nil {
		return "", fmt.Errorf("store content %s: %w", id, err)
	}
	return id, nil
}

func (s *Redis) Get(ctx context.Context, id domain.ContentID) ([]byte, error) {
	blob, err := s.client.Get(ctx, keyPrefix+string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", id, err)
	}
	return blob, nil
}
