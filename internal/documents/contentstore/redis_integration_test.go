//go:build integration

package contentstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"certify/internal/documents/contentstore"
	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *contentstore.Redis
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = contentstore.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestPutIsIdempotent() {
	ctx := context.Background()
	blob := []byte{0x00, 0xff, 0x10, 'x'}

	first, err := s.store.Put(ctx, blob)
	s.Require().NoError(err)
	second, err := s.store.Put(ctx, blob)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(contentstore.IDFor(blob), first)

	got, err := s.store.Get(ctx, first)
	s.Require().NoError(err)
	s.Equal(blob, got)
}

func (s *RedisStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), contentstore.IDFor([]byte("absent")))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
