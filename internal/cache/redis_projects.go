// Package cache keeps parsed project structures in Redis so uploads do not
// re-read and re-index the structure on every request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"epicollect/api/internal/project"
)

// RedisProjects stores projects keyed by slug with a fixed TTL.
type RedisProjects struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisProjects(redisURL string, ttl time.Duration) (*RedisProjects, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisProjectsWithClient(client, ttl), nil
}

func NewRedisProjectsWithClient(client *redis.Client, ttl time.Duration) *RedisProjects {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisProjects{client: client, prefix: "project:", ttl: ttl}
}

func (c *RedisProjects) key(slug string) string {
	return c.prefix + slug
}

// Get returns the cached project; ok is false on a miss.
func (c *RedisProjects) Get(ctx context.Context, slug string) (p *project.Project, ok bool, err error) {
	data, err := c.client.Get(ctx, c.key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached project %s: %w", slug, err)
	}
	p, err = project.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (c *RedisProjects) Put(ctx context.Context, p *project.Project) error {
	data, err := p.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode project %s: %w", p.Slug, err)
	}
	if err := c.client.Set(ctx, c.key(p.Slug), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache project %s: %w", p.Slug, err)
	}
	return nil
}

func (c *RedisProjects) Invalidate(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, c.key(slug)).Err(); err != nil {
		return fmt.Errorf("invalidate project %s: %w", slug, err)
	}
	return nil
}

func (c *RedisProjects) Close() error {
	return c.client.Close()
}

func (c *RedisProjects) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
