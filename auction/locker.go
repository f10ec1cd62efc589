package auction

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Locker 提供以拍賣為單位的互斥，不同拍賣之間完全平行
type Locker interface {
	// Lock 取得拍賣鎖，ctx 取消或逾時時回傳 ctx.Err()
	Lock(ctx context.Context, auctionID uuid.UUID) (unlock func(), err error)
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// LocalLocker 是單一行程內的拍賣鎖，每個拍賣對應一個容量為1的 semaphore，
// 沒有任何持有者或等待者時會從 map 中移除
type LocalLocker struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[uuid.UUID]*lockEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, auctionID uuid.UUID) (func(), error) {
	entry := l.acquireEntry(auctionID)
	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.releaseEntry(auctionID)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.releaseEntry(auctionID)
		})
	}, nil
}

func (l *LocalLocker) acquireEntry(auctionID uuid.UUID) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[auctionID]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[auctionID] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) releaseEntry(auctionID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[auctionID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, auctionID)
	}
}

// Len 回傳目前追蹤中的拍賣數量
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ChainLocker 依序取得多個鎖，釋放時反向釋放。
// 通常先取本機鎖再取分散式鎖，讓同一行程內的競爭不會打到 Redis。
type ChainLocker []Locker

func (c ChainLocker) Lock(ctx context.Context, auctionID uuid.UUID) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, locker := range c {
		unlock, err := locker.Lock(ctx, auctionID)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
