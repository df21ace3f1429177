package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/recomtext/core"
)

const itemCachePrefix = "recomtext:item:"

// RedisMetadataCache 在 MetadataStore 前加一层 redis 只读缓存。
// 验证阶段对同一批物品的类目解析会重复命中，缓存显著降低底层查询量。
//
// 缓存策略：
//   - 命中：直接反序列化返回
//   - 未命中：回源查询，结果带 TTL 写回（写回失败不影响读路径）
//   - 底层 NOT_FOUND 不缓存，原样透传
type RedisMetadataCache struct {
	client *redis.Client
	next   core.MetadataStore
	ttl    time.Duration
}

// NewRedisMetadataCache 创建缓存层。ttl<=0 时默认 1 小时。
func NewRedisMetadataCache(addr string, db int, next core.MetadataStore, ttl time.Duration) (*RedisMetadataCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisMetadataCache{client: client, next: next, ttl: ttl}, nil
}

// GetItem 实现 MetadataStore
func (c *RedisMetadataCache) GetItem(ctx context.Context, itemID string) (*core.ItemInfo, error) {
	key := itemCachePrefix + itemID

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var info core.ItemInfo
		if jsonErr := json.Unmarshal(data, &info); jsonErr == nil {
			return &info, nil
		}
		// 缓存内容损坏按未命中处理
	} else if err != redis.Nil {
		// redis 故障时降级回源
		info, srcErr := c.next.GetItem(ctx, itemID)
		return info, srcErr
	}

	info, err := c.next.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if data, jsonErr := json.Marshal(info); jsonErr == nil {
		c.client.Set(ctx, key, data, c.ttl)
	}
	return info, nil
}

// Close 释放 redis 连接
func (c *RedisMetadataCache) Close() error {
	return c.client.Close()
}

var _ core.MetadataStore = (*RedisMetadataCache)(nil)
