package program

import (
	"sync"
	"time"

	"storycast/logger"
	"storycast/model"
)

// lockEntry 持锁标记
type lockEntry struct {
	acquiredAt time.Time
	jobID      string
}

// GenerationLock 按生成键互斥，同一键同一时刻只允许一次生成。
// 非阻塞：拿不到锁直接返回false，调用方自行决定稍后重试。
type GenerationLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func NewGenerationLock() *GenerationLock {
	return &GenerationLock{locks: make(map[string]*lockEntry)}
}

// Acquire 尝试获取锁，已被持有时返回false
func (l *GenerationLock) Acquire(key model.GenerationKey, jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key.String()
	if _, held := l.locks[k]; held {
		return false
	}
	l.locks[k] = &lockEntry{acquiredAt: time.Now(), jobID: jobID}
	return true
}

// Release 释放锁。worker的每条退出路径都必须调用，
// 包括panic路径，否则该键会被永久锁死。
func (l *GenerationLock) Release(key model.GenerationKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key.String())
}

// IsHeld 只读探测，供接口在建任务前短路"正在生成中"
func (l *GenerationLock) IsHeld(key model.GenerationKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.locks[key.String()]
	return held
}

// HolderJobID 返回当前持锁的任务ID，未持有返回空串
func (l *GenerationLock) HolderJobID(key model.GenerationKey) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, held := l.locks[key.String()]; held {
		return e.jobID
	}
	return ""
}

// CleanupExpired 清理超过maxAge的锁，作为泄漏时的兜底。
// 正常情况下worker自己释放，这里从不该有活干。
func (l *GenerationLock) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range l.locks {
		if now.Sub(e.acquiredAt) > maxAge {
			logger.Warn("清理过期生成锁",
				logger.String("key", k),
				logger.String("jobId", e.jobID),
				logger.Duration("age", now.Sub(e.acquiredAt)))
			delete(l.locks, k)
			removed++
		}
	}
	return removed
}
