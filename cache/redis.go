package cache

import (
	"context"
	"fmt"
	"time"

	"storycast/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient 是全局Redis客户端。为 nil 时所有缓存操作静默降级，
// 流水线本身不依赖 Redis。
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		RedisClient = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// TestRedis 测试Redis连接和基本操作
func TestRedis() error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	ctx := context.Background()

	if err := RedisClient.Set(ctx, "test_key", "Redis connection successful!", 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}

	val, err := RedisClient.Get(ctx, "test_key").Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != "Redis connection successful!" {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}

	if _, err := RedisClient.Del(ctx, "test_key").Result(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}

	return nil
}
