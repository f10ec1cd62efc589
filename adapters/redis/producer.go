package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

var ErrProducerClosed = errors.New("producer is closed")

type producerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	maxLen       int64
	drainTimeout time.Duration
	retryMin     time.Duration
	retryMax     time.Duration
	parseFunc    func(T) (map[string]any, error)
	labelFunc    func(T) string
}

type ProducerOption[T any] func(*producerOptions[T])

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger[T any](logger *slog.Logger) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置緩衝大小
func WithProducerBufferSize[T any](size int) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.bufferSize = size
	}
}

// WithProducerMaxLen 設置 stream 的近似長度上限，0 表示不修剪
func WithProducerMaxLen[T any](n int64) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.maxLen = n
	}
}

// WithProducerDrainTimeout 設置關閉時等待緩衝區送出的最長時間
func WithProducerDrainTimeout[T any](d time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.drainTimeout = d
	}
}

// WithProducerRetryBackoff 設置寫入失敗時的重試間隔，每次加倍直到 limit
func WithProducerRetryBackoff[T any](initial, limit time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.retryMin = initial
		o.retryMax = limit
	}
}

// WithProducerLabelFunc 設置消息在日誌中的標籤，例如事件種類
func WithProducerLabelFunc[T any](fn func(T) string) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.labelFunc = fn
	}
}

// WithProducerParseFunc 設置消息序列化函數
func WithProducerParseFunc[T any](fn func(T) (map[string]any, error)) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.parseFunc = fn
	}
}

// outgoing 是等待寫入的消息
type outgoing struct {
	label  string
	values map[string]any
}

// Producer 非同步地將消息寫入 stream。Publish 只負責放入無界緩衝區，
// 寫入失敗時以指數退避重試，只有在關閉且超過 drainTimeout 後才會丟棄消息
type Producer[T any] struct {
	client     redis.UniversalClient
	stream     string
	upstream   *chanx.UnboundedChan[outgoing]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	options    producerOptions[T]
}

func NewProducer[T any](client redis.UniversalClient, stream string, opts ...ProducerOption[T]) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := producerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		drainTimeout: 5 * time.Second,
		retryMin:     100 * time.Millisecond,
		retryMax:     5 * time.Second,
		parseFunc:    DefaultParseToMessage[T],
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.retryMin <= 0 {
		return nil, errors.New("retry backoff must be positive")
	}
	options.retryMax = max(options.retryMax, options.retryMin)

	producer := &Producer[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
		options: options,
	}

	return producer, nil
}

func (p *Producer[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[outgoing](ctx, p.options.bufferSize)
	p.cancelFunc = cancel
	p.closed = false
	p.logger.Info("starting stream producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("producer goroutine stopped")

		// Out 會在 In 關閉且緩衝區清空後關閉，或在 ctx 取消時關閉
		for message := range p.upstream.Out {
			p.add(ctx, message)
		}
	}()
}

func (p *Producer[T]) add(ctx context.Context, message outgoing) {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: message.values,
	}
	if p.options.maxLen > 0 {
		args.MaxLen = p.options.maxLen
		args.Approx = true
	}
	backoff := p.options.retryMin
	for attempt := 1; ; attempt++ {
		id, err := p.client.XAdd(ctx, args).Result()
		if err == nil {
			p.logger.Debug("message published", slog.String("messageId", id), slog.String("label", message.label))
			return
		}
		if ctx.Err() != nil {
			p.logger.Error("producer stopped, message dropped",
				slog.String("label", message.label),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		p.logger.Warn("publish message error, retrying",
			slog.String("label", message.label),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			p.logger.Error("producer stopped, message dropped",
				slog.String("label", message.label),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, p.options.retryMax)
	}
}

// Publish 將資料放入發送緩衝區，不等待 Redis 寫入完成
func (p *Producer[T]) Publish(ctx context.Context, data T) error {
	values, err := p.options.parseFunc(data)
	if err != nil {
		return fmt.Errorf("parse message error: %w", err)
	}
	message := outgoing{values: values}
	if p.options.labelFunc != nil {
		message.label = p.options.labelFunc(data)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.upstream.In <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新消息，並在 drainTimeout 內送出緩衝區中剩餘的消息
func (p *Producer[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing stream producer")
	p.closed = true
	close(p.upstream.In)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.options.drainTimeout):
		p.logger.Warn("drain timeout, dropping buffered messages", slog.Int("remaining", p.upstream.Len()))
		p.cancelFunc()
		<-done
	}
	p.cancelFunc()
	p.logger.Info("stream producer closed")
}
