package engine

import (
	"sync"
	"time"
)

// lockTable 按键分配互斥锁，键通常是交易所订单号或机器人ID。
// 条目进程内常驻，终态订单的锁由 Evict 周期性清理。
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu          sync.Mutex
	refs        int
	lastRelease time.Time
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// Acquire 锁住给定键并返回释放函数。同键串行，异键并行。
func (t *lockTable) Acquire(key string) func() {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		e.lastRelease = time.Now()
		t.mu.Unlock()
	}
}

func (t *lockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Evict 移除空闲超过 maxAge 且无人持有的条目，返回清理数。
// 被清理的键下次 Acquire 时重建，不影响互斥语义。
func (t *lockTable) Evict(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for k, e := range t.entries {
		if e.refs == 0 && !e.lastRelease.IsZero() && e.lastRelease.Before(cutoff) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}
