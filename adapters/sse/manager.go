package sse

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrManagerClosed = errors.New("connection manager is closed")

// ConnectionManager 管理多個 SSE 頻道的訂閱與發布，只負責本機的連線。
// 跨節點的廣播由上層讀取 Redis Stream 後再呼叫 Publish 完成
type ConnectionManager[T any] struct {
	logger     *slog.Logger
	bufferSize int

	mu       sync.RWMutex           // 保護 active 和 channels 的讀寫
	active   bool                   // 標記 manager 是否正在運作中
	channels map[string]*Channel[T] // 儲存所有活躍的頻道
}

type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger     *slog.Logger
	bufferSize int
}

// WithManagerLogger 設置日誌記錄器
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithManagerBufferSize 設置每個訂閱者的緩衝大小，緩衝滿了的訂閱者會被斷開
func WithManagerBufferSize(size int) ManagerOption {
	return func(o *managerOptions) {
		o.bufferSize = size
	}
}

// NewConnectionManager 建立一個新的連線管理器。
func NewConnectionManager[T any](opts ...ManagerOption) *ConnectionManager[T] {
	options := managerOptions{
		logger:     slog.Default(),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &ConnectionManager[T]{
		logger:     options.logger.With(slog.String("caller", "ConnectionManager")),
		bufferSize: options.bufferSize,
		channels:   make(map[string]*Channel[T]),
		active:     true,
	}
}

// Done 停止連線管理器的運作。
func (cm *ConnectionManager[T]) Done() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return
	}

	cm.active = false
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe 訂閱指定的頻道。
func (cm *ConnectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, ErrManagerClosed
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T](cm.bufferSize)
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 發布訊息到指定的頻道，沒有訂閱者時直接忽略。
func (cm *ConnectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return ErrManagerClosed
	}

	c, ok := cm.channels[channelName]
	if !ok {
		return nil
	}
	if evicted := c.Broadcast(data); evicted > 0 {
		cm.logger.Warn("Slow subscribers evicted",
			slog.String("channel", channelName),
			slog.Int("count", evicted))
	}
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
	return nil
}

// Unsubscribe 取消訂閱指定的頻道。
func (cm *ConnectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}

// Subscribers 回傳指定頻道目前的訂閱者數量
func (cm *ConnectionManager[T]) Subscribers(channelName string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if c, ok := cm.channels[channelName]; ok {
		return c.Len()
	}
	return 0
}
