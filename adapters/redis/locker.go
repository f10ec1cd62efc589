package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker 以 AutoRenewMutex 實作跨行程的拍賣鎖，key 格式為 <prefix>auction:<id>:lock
type Locker struct {
	client    redis.UniversalClient
	prefix    string
	mutexOpts []AutoRenewMutexOption
	logger    *slog.Logger
}

type LockerOption func(*Locker)

// WithLockerKeyPrefix 設置 key 前綴
func WithLockerKeyPrefix(prefix string) LockerOption {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLockerMutexOptions 設置底層 AutoRenewMutex 的選項
func WithLockerMutexOptions(opts ...AutoRenewMutexOption) LockerOption {
	return func(l *Locker) {
		l.mutexOpts = append(l.mutexOpts, opts...)
	}
}

// WithLockerLogger 設置日誌記錄器
func WithLockerLogger(logger *slog.Logger) LockerOption {
	return func(l *Locker) {
		l.logger = logger
	}
}

func NewLocker(client redis.UniversalClient, opts ...LockerOption) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	l := &Locker{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("caller", "RedisLocker"))
	return l, nil
}

// Key 回傳拍賣鎖在 Redis 上的 key
func (l *Locker) Key(auctionID uuid.UUID) string {
	return fmt.Sprintf("%sauction:%s:lock", l.prefix, auctionID)
}

// Lock 取得拍賣鎖，ctx 只限制等待時間，取得後持續續期直到 unlock 被呼叫
func (l *Locker) Lock(ctx context.Context, auctionID uuid.UUID) (func(), error) {
	key := l.Key(auctionID)
	opts := append(append([]AutoRenewMutexOption{}, l.mutexOpts...), WithAutoRenewMutexDetached(true))
	mutex := NewAutoRenewMutex(l.client, key, opts...)
	if _, err := mutex.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		ok, err := mutex.Unlock()
		if err != nil || !ok {
			// 鎖已經過期，提交依賴帳本版本檢查，不會因此寫壞資料
			l.logger.Warn("Fail to release auction lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
