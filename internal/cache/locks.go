package cache

import "sync"

// KeyLocks 为每个 key 提供独立互斥锁，空闲时自动回收，避免 map 无限增长。
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocks 创建空的按键互斥表。
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*entryLock)}
}

// Lock 获取 key 对应的互斥锁，返回的函数负责释放，调用方应 defer 调用。
func (l *KeyLocks) Lock(key string) func() {
	l.mu.Lock()
	lock := l.locks[key]
	if lock == nil {
		lock = &entryLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len 返回当前持有或等待中的 key 数量。
func (l *KeyLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
