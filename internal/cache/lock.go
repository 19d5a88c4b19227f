package cache

import (
	"context"
	"fmt"
	"time"

	"WaBlast/storage/redis"
)

// 实现分布式锁，通过 SetNX 保证同一活动同一时刻只有一次调度扫描
const (
	lockPrefix = "lock"
)

func TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {

	fullkey := redis.Key(lockPrefix, key)

	result, err := redis.Client().SetNX(ctx, fullkey, 1, ttl).Result()

	if err != nil {
		return false, err
	}

	return result, err
}

func Unlock(ctx context.Context, key string) error {
	fullkey := redis.Key(lockPrefix, key)

	return redis.Client().Del(ctx, fullkey).Err()
}

// CampaignLockKey 活动租约 key
func CampaignLockKey(campaignID int64) string {
	return fmt.Sprintf("campaign:%d", campaignID)
}
