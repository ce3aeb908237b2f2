package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maneesh/soundpost/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CacheTTL is the time-to-live for cached post metadata (5 minutes)
	CacheTTL = 5 * time.Minute
)

// RedisClient wraps Redis operations with tracing
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// GetPost retrieves a cached post with tracing. A cache miss is (nil, nil).
func (rc *RedisClient) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "redis.get_post",
		trace.WithAttributes(
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	key := fmt.Sprintf("post:%s", postID)
	data, err := rc.client.Get(ctx, key).Result()

	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil // Cache miss, not an error
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var post models.Post
	if err := json.Unmarshal([]byte(data), &post); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached post: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &post, nil
}

// SetPost stores a post in the cache with tracing
func (rc *RedisClient) SetPost(ctx context.Context, post *models.Post) error {
	ctx, span := tracer.Start(ctx, "redis.set_post",
		trace.WithAttributes(
			attribute.String("post_id", post.ID),
			attribute.String("track_name", post.TrackName),
		),
	)
	defer span.End()

	key := fmt.Sprintf("post:%s", post.ID)
	data, err := json.Marshal(post)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal post: %w", err)
	}

	err = rc.client.Set(ctx, key, data, CacheTTL).Err()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(CacheTTL.Seconds())))
	return nil
}

// InvalidatePost removes a post from the cache with tracing
func (rc *RedisClient) InvalidatePost(ctx context.Context, postID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_post",
		trace.WithAttributes(
			attribute.String("post_id", postID),
		),
	)
	defer span.End()

	key := fmt.Sprintf("post:%s", postID)
	err := rc.client.Del(ctx, key).Err()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}
