//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rollguard/internal/address/store"
	"rollguard/internal/sentinel"
	"rollguard/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = store.NewRedisCache(s.redis.Client)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestSaveAndFind() {
	ctx := context.Background()
	entry := cacheEntry("d1", time.Now().UTC(), time.Hour)
	s.Require().NoError(s.cache.Save(ctx, entry))

	got, err := s.cache.Find(ctx, "d1")
	s.Require().NoError(err)
	s.Equal(entry.Geocode, got.Geocode)
}

func (s *RedisCacheSuite) TestKeyCarriesTTL() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Save(ctx, cacheEntry("d1", time.Now().UTC(), time.Hour)))

	ttl, err := s.redis.Client.TTL(ctx, "rollguard:address:d1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisCacheSuite) TestExpiredEntryIsNotWritten() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Save(ctx, cacheEntry("old", time.Now().Add(-2*time.Hour), time.Hour)))

	_, err := s.cache.Find(ctx, "old")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
