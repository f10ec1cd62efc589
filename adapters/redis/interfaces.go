package redis

import (
	"context"
)

// IProducer 將資料寫入 Redis stream
type IProducer[T any] interface {
	Start()
	Publish(ctx context.Context, data T) error
	Close()
}

// IGroupConsumer 以 consumer group 讀取 stream，每筆消息需要 Done 或 Fail
type IGroupConsumer[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IConsumer 讀取 stream 的新消息並廣播給本機
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IAutoRenewMutex 是帶自動續期的分散式鎖
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}
