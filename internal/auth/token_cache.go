package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/pkg/secrets"
)

// expirySkew is the margin before actual expiry at which a cached token is
// treated as stale.
const expirySkew = time.Minute

// Cache stores short-lived bearer tokens between requests. When nil/disabled,
// every inbound request performs its own exchange.
type Cache interface {
	Get(ctx context.Context, key string) (Token, bool)
	Put(ctx context.Context, key string, tok Token)
}

// memoryCache keeps tokens in-process, TTL'd by their own expiry.
type memoryCache struct {
	inner *secrets.Cache[Token]
}

// NewMemoryCache creates an in-process token cache.
func NewMemoryCache() Cache {
	return &memoryCache{inner: secrets.NewCache[Token](time.Hour)}
}

func (m *memoryCache) Get(_ context.Context, key string) (Token, bool) {
	tok, ok := m.inner.Get(key)
	if !ok || time.Now().After(tok.ExpiresAt.Add(-expirySkew)) {
		return Token{}, false
	}
	return tok, true
}

func (m *memoryCache) Put(_ context.Context, key string, tok Token) {
	m.inner.PutTTL(key, tok, time.Until(tok.ExpiresAt.Add(-expirySkew)))
}

// redisCache shares tokens across instances through Redis.
type redisCache struct {
	logger *zap.Logger
	rdb    *redis.Client
}

// NewRedisCache creates a Redis-backed token cache.
func NewRedisCache(logger *zap.Logger, rdb *redis.Client) Cache {
	return &redisCache{logger: logger, rdb: rdb}
}

func (r *redisCache) Get(ctx context.Context, key string) (Token, bool) {
	val, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("auth.cache_get_failed", zap.Error(err))
		}
		return Token{}, false
	}

	var tok Token
	if err := json.Unmarshal([]byte(val), &tok); err != nil {
		return Token{}, false
	}
	if time.Now().After(tok.ExpiresAt.Add(-expirySkew)) {
		return Token{}, false
	}
	return tok, true
}

func (r *redisCache) Put(ctx context.Context, key string, tok Token) {
	ttl := time.Until(tok.ExpiresAt.Add(-expirySkew))
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, string(b), ttl).Err(); err != nil {
		r.logger.Warn("auth.cache_set_failed", zap.Error(err))
	}
}

// NewCacheFromMode builds the cache named by mode: "" (disabled), "memory",
// or "redis".
func NewCacheFromMode(logger *zap.Logger, mode, redisAddr, redisPass string, redisDB int) (Cache, error) {
	switch mode {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: redisPass,
			DB:       redisDB,
		})
		return NewRedisCache(logger, rdb), nil
	default:
		return nil, fmt.Errorf("unknown token cache mode %q", mode)
	}
}
