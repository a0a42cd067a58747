package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storycast/model"

	"github.com/go-redis/redis/v8"
)

// 任务状态缓存：轮询接口的快路径。数据库始终是事实来源，
// 缓存短 TTL 过期即可，不做主动失效。
const jobCacheTTL = 30 * time.Second

// jobKey 根据任务ID生成Redis键
func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// manifestKey 根据生成键生成清单缓存的Redis键
func manifestKey(key model.GenerationKey) string {
	return fmt.Sprintf("manifest:%s:%s:%s", key.World, key.OwnerID, key.Language)
}

// SetJob 写入任务状态缓存
func SetJob(ctx context.Context, job *model.Job) error {
	if RedisClient == nil {
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return RedisClient.Set(ctx, jobKey(job.ID), data, jobCacheTTL).Err()
}

// GetJob 读取任务状态缓存，未命中返回 (nil, nil)
func GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	if RedisClient == nil {
		return nil, nil
	}

	data, err := RedisClient.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached job: %w", err)
	}
	return &job, nil
}

// SetManifest 缓存合并清单，供生成决策快速读取
func SetManifest(ctx context.Context, key model.GenerationKey, m *model.CombinedManifest, ttl time.Duration) error {
	if RedisClient == nil {
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return RedisClient.Set(ctx, manifestKey(key), data, ttl).Err()
}

// GetManifest 读取清单缓存，未命中返回 (nil, nil)
func GetManifest(ctx context.Context, key model.GenerationKey) (*model.CombinedManifest, error) {
	if RedisClient == nil {
		return nil, nil
	}

	data, err := RedisClient.Get(ctx, manifestKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached manifest: %w", err)
	}

	var m model.CombinedManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached manifest: %w", err)
	}
	return &m, nil
}

// DropManifest 清除清单缓存（发布新清单后调用）
func DropManifest(ctx context.Context, key model.GenerationKey) {
	if RedisClient == nil {
		return
	}
	RedisClient.Del(ctx, manifestKey(key))
}
