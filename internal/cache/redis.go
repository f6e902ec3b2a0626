// Package cache keeps recently read posts in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/redis/go-redis/v9"
)

const (
	listKey    = "posts:list"
	postPrefix = "posts:"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// PostCache stores the post list and single posts as JSON with a TTL.
type PostCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPostCache(rdb *redis.Client, ttl time.Duration) *PostCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PostCache{rdb: rdb, ttl: ttl}
}

func (c *PostCache) GetList(ctx context.Context) ([]types.Post, bool, error) {
	var posts []types.Post
	found, err := c.get(ctx, listKey, &posts)
	return posts, found, err
}

func (c *PostCache) SetList(ctx context.Context, posts []types.Post) error {
	return c.set(ctx, listKey, posts)
}

func (c *PostCache) GetPost(ctx context.Context, id uuid.UUID) (types.Post, bool, error) {
	var post types.Post
	found, err := c.get(ctx, postKey(id), &post)
	return post, found, err
}

func (c *PostCache) SetPost(ctx context.Context, post types.Post) error {
	return c.set(ctx, postKey(post.ID), post)
}

// Invalidate drops the list and the given posts.
func (c *PostCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey)
	for _, id := range ids {
		keys = append(keys, postKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *PostCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// stale shape from an older release, treat as a miss
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *PostCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

func postKey(id uuid.UUID) string {
	return postPrefix + id.String()
}
