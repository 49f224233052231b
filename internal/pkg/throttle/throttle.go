package throttle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "yamdb:throttle:signup:"

// Throttle 基于 Redis SetNX 的冷却器。
//
// 注册接口是幂等的：同一 (username, email) 重复提交会重新派生并
// 重发确认码。冷却器保证两次投递之间至少间隔 cooldown，
// 防止把邮箱刷爆。
type Throttle struct {
	rdb      *redis.Client
	cooldown time.Duration
}

func New(rdb *redis.Client, cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Throttle{
		rdb:      rdb,
		cooldown: cooldown,
	}
}

// Allow 尝试获取 subject 的投递窗口。
//
// 返回 true 表示允许投递并立即进入冷却；冷却期内返回 false。
// Redis 不可用时放行（投递节流不是正确性约束）。
func (t *Throttle) Allow(ctx context.Context, subject string) (bool, error) {
	if t == nil || t.rdb == nil || subject == "" {
		return true, nil
	}
	key := keyPrefix + hashSubject(subject)
	ok, err := t.rdb.SetNX(ctx, key, "1", t.cooldown).Result()
	if err != nil {
		return true, fmt.Errorf("throttle setnx: %w", err)
	}
	return ok, nil
}

// Reset 清除 subject 的冷却状态。
func (t *Throttle) Reset(ctx context.Context, subject string) error {
	if t == nil || t.rdb == nil || subject == "" {
		return nil
	}
	key := keyPrefix + hashSubject(subject)
	if err := t.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("throttle del: %w", err)
	}
	return nil
}

func hashSubject(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:])
}
