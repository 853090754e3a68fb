package refdata

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"killfeed/internal/store"
)

// Cache is the lookup cache behind the resolver. Implementations are
// best-effort: a miss or a backend error both read as "not cached".
type Cache interface {
	Get(ctx context.Context, kind, key string) ([]byte, bool)
	Put(ctx context.Context, kind, key string, data []byte)
}

type memoryCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryCache(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 4096
	}
	return &memoryCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *memoryCache) Get(_ context.Context, kind, key string) ([]byte, bool) {
	return c.lru.Get(kind + ":" + key)
}

func (c *memoryCache) Put(_ context.Context, kind, key string, data []byte) {
	c.lru.Add(kind+":"+key, data)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache shares resolved entities across processes. Entries carry the
// same TTL as the in-memory layer.
func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, kind, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, "refdata:"+kind+":"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *redisCache) Put(ctx context.Context, kind, key string, data []byte) {
	_ = c.client.Set(ctx, "refdata:"+kind+":"+key, data, c.ttl).Err()
}

type storeCache struct {
	store store.Store
	ttl   time.Duration
}

// NewStoreCache persists resolved entities in the SQL store's ref_cache
// table so restarts keep a warm cache.
func NewStoreCache(s store.Store, ttl time.Duration) Cache {
	return &storeCache{store: s, ttl: ttl}
}

func (c *storeCache) Get(ctx context.Context, kind, key string) ([]byte, bool) {
	data, ok, err := c.store.CacheGet(ctx, kind, key)
	if err != nil {
		return nil, false
	}
	return data, ok
}

func (c *storeCache) Put(ctx context.Context, kind, key string, data []byte) {
	_ = c.store.CachePut(ctx, kind, key, data, c.ttl)
}

type layeredCache struct {
	layers []Cache
}

// Layered tries each cache in order and backfills earlier layers on a hit.
func Layered(layers ...Cache) Cache {
	return &layeredCache{layers: layers}
}

func (c *layeredCache) Get(ctx context.Context, kind, key string) ([]byte, bool) {
	for i, layer := range c.layers {
		data, ok := layer.Get(ctx, kind, key)
		if !ok {
			continue
		}
		for _, earlier := range c.layers[:i] {
			earlier.Put(ctx, kind, key, data)
		}
		return data, true
	}
	return nil, false
}

func (c *layeredCache) Put(ctx context.Context, kind, key string, data []byte) {
	for _, layer := range c.layers {
		layer.Put(ctx, kind, key, data)
	}
}
