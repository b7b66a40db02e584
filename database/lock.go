// file: database/lock.go
package database

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript 只释放自己持有的锁，token 不匹配说明锁已过期被别人拿走
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker services.Locker 的分布式实现，多节点部署时保证
// 同一 (题目, 归属方) 的开通流程全局互斥。
type RedisLocker struct {
	rdb *redis.Client
	// ttl 锁的自动过期时间，防止持有方崩溃后死锁
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: 30 * time.Second}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	fullKey := "ctfbox:lock:" + key

	for {
		ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	release := func() {
		// 释放用独立的短超时，调用方的 ctx 此时可能已经取消
		relCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.rdb, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("Warning: failed to release lock %s: %v", fullKey, err)
		}
	}
	return release, nil
}
