package cache

import (
	"context"
	"fmt"
	"time"

	"WaBlast/storage/redis"
)

const (
	dispatchProcessedPrefix = "dispatch:processed"
	statusEventPrefix       = "webhook:status"

	processedTTL = 24 * time.Hour
)

// TryMarkDispatchProcessing 标记派发任务开始处理（幂等性检查）
// SETNX：key 不存在则设置并返回 true；已存在返回 false（重复消息）
func TryMarkDispatchProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	key := redis.Key(dispatchProcessedPrefix, messageID)
	if ttl <= 0 {
		ttl = processedTTL
	}

	result, err := redis.Client().SetNX(ctx, key, "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark dispatch as processing: %w", err)
	}
	return result, nil
}

// UnmarkDispatchProcessing 取消处理标记（处理失败时调用，允许重试）
func UnmarkDispatchProcessing(ctx context.Context, messageID string) error {
	key := redis.Key(dispatchProcessedPrefix, messageID)
	return redis.Client().Del(ctx, key).Err()
}

// MarkDispatchProcessed 标记派发任务处理完成（延长 TTL）
func MarkDispatchProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	key := redis.Key(dispatchProcessedPrefix, messageID)
	if ttl <= 0 {
		ttl = processedTTL
	}
	return redis.Client().Set(ctx, key, "completed", ttl).Err()
}

// MarkStatusEvent 记录 (message_id, status) 状态事件，返回是否首次出现。
// provider 会重复投递状态回调，重复事件按 last-write-wins 处理，这里只用于日志降噪。
func MarkStatusEvent(ctx context.Context, messageID, status string) (bool, error) {
	key := redis.Key(statusEventPrefix, messageID, status)
	first, err := redis.Client().SetNX(ctx, key, 1, processedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark status event: %w", err)
	}
	return first, nil
}
