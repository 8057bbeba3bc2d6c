package rediscache

import (
  "context"
  "errors"
  "fmt"
  "os"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/utils"
)

// Cache is a small TTL cache in front of the public verification endpoint.
// Every error is reported as a miss so a Redis outage never affects results.
type Cache interface {
  Get(ctx context.Context, key string) ([]byte, bool)
  Set(ctx context.Context, key string, value []byte)
  Delete(ctx context.Context, key string)
}

type cache struct {
  log *logger.Logger
  rdb *redis.Client
  ttl time.Duration
}

func New(log *logger.Logger) (Cache, error) {
  addr := os.Getenv("REDIS_ADDR")
  if addr == "" {
    return nil, fmt.Errorf("missing env var REDIS_ADDR")
  }
  ttlSec := utils.GetEnvAsInt("VERIFY_CACHE_TTL_SECONDS", 60, log)
  rdb := redis.NewClient(&redis.Options{
    Addr:     addr,
    Password: os.Getenv("REDIS_PASSWORD"),
    DB:       utils.GetEnvAsInt("REDIS_DB", 0, log),
  })
  return &cache{
    log: log.With("client", "RedisCache"),
    rdb: rdb,
    ttl: time.Duration(ttlSec) * time.Second,
  }, nil
}

func (c *cache) Get(ctx context.Context, key string) ([]byte, bool) {
  val, err := c.rdb.Get(ctx, key).Bytes()
  if err != nil {
    if !errors.Is(err, redis.Nil) {
      c.log.Debug("Cache get failed", "key", key, "error", err)
    }
    return nil, false
  }
  return val, true
}

func (c *cache) Set(ctx context.Context, key string, value []byte) {
  if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
    c.log.Debug("Cache set failed", "key", key, "error", err)
  }
}

func (c *cache) Delete(ctx context.Context, key string) {
  if err := c.rdb.Del(ctx, key).Err(); err != nil {
    c.log.Debug("Cache delete failed", "key", key, "error", err)
  }
}
