// file: services/keymutex.go
package services

import (
	"context"
	"sync"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// KeyMutex 进程内按 key 互斥的 Locker 实现，单机部署使用。
// 多机部署改用 database.RedisLocker。
// key 对应的锁在最后一个持有者释放后回收，map 不随 key 数量累积。
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyMutex) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	release := func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
	return release, nil
}
