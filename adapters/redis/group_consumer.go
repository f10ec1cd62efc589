package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrConsumerClosed = errors.New("consumer is closed")
)

// Message 封裝消息和ack所需資料
type Message[T any] struct {
	Data T

	client    redis.UniversalClient
	mu        sync.Mutex
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// ID 回傳 stream 中的消息 ID
func (m *Message[T]) ID() string {
	return m.messageID
}

// Done 確認消息已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 將消息連同錯誤原因移到 dead-letter stream 並確認
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}

	values := maps.Clone(m.raw)
	if values == nil {
		values = map[string]any{}
	}
	values[fieldError] = failErr.Error()
	err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterStream(m.stream),
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	err = m.client.XAck(ctx, m.stream, m.group, m.messageID).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

// GroupConsumer 以 consumer group 讀取 stream，同一個 group 內每筆消息只交給一個消費者。
// 嚴格順序模式下整個 group 同時只有一個持鎖的消費者在工作，並且每輪會先重放 pending 消息
type GroupConsumer[T any] struct {
	client        redis.UniversalClient
	stream        string
	group         string
	consumer      string
	downStream    chan *Message[T]
	cancelFunc    context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	closed        bool
	logger        *slog.Logger
	mutex         IAutoRenewMutex
	pendingMsgIds []string
	options       groupConsumerOptions[T]
}

type groupConsumerOptions[T any] struct {
	logger         *slog.Logger
	parseFunc      func(map[string]any) (T, error)
	bufferSize     int
	blockTimeout   time.Duration
	retryDelay     time.Duration
	mutex          IAutoRenewMutex
	strictOrdering bool // 嚴格順序模式
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerParseFunc 設置消息解析函數
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithGroupConsumerBufferSize 設置下游channel的緩衝大小
func WithGroupConsumerBufferSize[T any](size int) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerRetryDelay 設置與 Redis 通訊失敗後的等待時間
func WithGroupConsumerRetryDelay[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.retryDelay = d
	}
}

// WithGroupConsumerMutex 指定嚴格順序模式使用的鎖，未指定時以 stream 與 group 組成鎖名稱
func WithGroupConsumerMutex[T any](mutex IAutoRenewMutex) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.mutex = mutex
	}
}

// WithGroupConsumerStrictOrdering 設置是否使用嚴格順序模式
func WithGroupConsumerStrictOrdering[T any](strict bool) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.strictOrdering = strict
	}
}

func NewGroupConsumer[T any](
	client redis.UniversalClient,
	stream, group, consumer string,
	opts ...GroupConsumerOption[T],
) (*GroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	// 默認選項
	options := groupConsumerOptions[T]{
		logger:         slog.Default(),
		parseFunc:      DefaultParseFromMessage[T],
		bufferSize:     1,
		blockTimeout:   time.Second,
		retryDelay:     time.Second,
		strictOrdering: false,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	gc := &GroupConsumer[T]{
		logger:     options.logger.With(slog.String("caller", "GroupConsumer"), slog.String("stream", stream), slog.String("group", group), slog.String("consumer", consumer)),
		client:     client,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		downStream: make(chan *Message[T], options.bufferSize),
		closed:     true,
		options:    options,
	}

	// 只在嚴格順序模式下設置mutex
	if options.strictOrdering {
		if options.mutex != nil {
			gc.mutex = options.mutex
		} else {
			gc.mutex = NewAutoRenewMutex(client, fmt.Sprintf("lock:%s:%s", stream, group), WithAutoRenewMutexSkipLockError(true))
		}
	}

	return gc, nil
}

// ensureGroup 建立 consumer group，stream 不存在時一併建立
func (s *GroupConsumer[T]) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Start 建立 consumer group 並開始讀取，只能有效啟動一次
func (s *GroupConsumer[T]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed || s.cancelFunc != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.ensureGroup(ctx); err != nil {
		cancel()
		return err
	}
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.downStream)

		for {
			if ctx.Err() != nil {
				return
			}
			workloadContext := ctx

			// 如果是嚴格順序模式下，會先拿鎖，然後再處理消息
			if s.options.strictOrdering {
				var err error
				// workloadContext在嚴格順序模式下會被修改成帶鎖狀態的child context，可以接收到鎖的釋放信號
				workloadContext, err = s.mutex.Lock(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					s.logger.Error("failed to acquire lock", slog.Any("error", err))
					s.wait(ctx)
					continue
				}
			}
			err := s.messagesWorkflow(workloadContext)
			if s.options.strictOrdering {
				if _, unlockErr := s.mutex.Unlock(); unlockErr != nil {
					s.logger.Warn("failed to release lock", slog.Any("error", unlockErr))
				}
			}
			if err == nil {
				continue
			}
			// 如果是context.Canceled，且是因為外部context取消，則退出循環
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			if s.options.strictOrdering && errors.Is(err, context.Canceled) {
				// 鎖的context取消，重新搶鎖
				s.logger.Error("lock context cancelled, stopping current processing, restarting group consumer")
			} else {
				s.logger.Error("error processing messages, stopping current processing, restarting group consumer", slog.Any("error", err))
				s.wait(ctx)
			}
		}
	}()

	return nil
}

func (s *GroupConsumer[T]) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.options.retryDelay):
	}
}

// Subscribe 訂閱Stream，返回Message通道
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupConsumer[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("closing group consumer")
	s.closed = true
	s.cancelFunc()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("group consumer closed gracefully")
	return nil
}

// messagesWorkflow 處理消息的工作流程
func (s *GroupConsumer[T]) messagesWorkflow(ctx context.Context) error {
	if s.options.strictOrdering {
		if err := s.fetchPendingMessageIds(ctx); err != nil {
			s.logger.Error("initial pending messages fetch failed", slog.Any("error", err))
			return err
		}
	}
	for {
		message, err := s.fetchNextMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			// 其他的錯誤一般是server跟redis之間的通訊異常，交給外層等待後重試
			return err
		}
		data, err := s.options.parseFunc(message.Values)
		if err != nil {
			// 解析失敗不會因為重試就成功，先將消息移動到dead-letter，系統繼續處理下一條消息
			s.logger.Error("failed to parse message",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			if deadLetterErr := s.moveToDeadLetter(ctx, message, err); deadLetterErr != nil {
				s.logger.Error("error moving message to dead letter",
					slog.String("messageId", message.ID),
					slog.Any("error", deadLetterErr),
				)
				// 移動失敗的消息會以pending的形式留在stream中
				// WARN: 只有嚴格順序模式會在下一輪開始時優先重放pending消息
				return deadLetterErr
			}
			continue
		}
		msg := &Message[T]{
			Data:      data,
			messageID: message.ID,
			stream:    s.stream,
			group:     s.group,
			client:    s.client,
			raw:       message.Values,
		}
		if err := s.moveToDownStream(ctx, msg); err != nil {
			// 只有可能是context.Canceled，消息會以pending的形式留在stream中
			s.logger.Debug("stop before message reached downstream",
				slog.String("messageId", message.ID),
			)
			return err
		}
	}
}

func (s *GroupConsumer[T]) fetchPendingMessageIds(ctx context.Context) error {
	s.pendingMsgIds = make([]string, 0, 100)
	lastId := "-"

	for {
		pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: s.stream,
			Group:  s.group,
			Start:  lastId,
			End:    "+",
			Count:  100, // 每次獲取100條
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return fmt.Errorf("error getting pending messages: %w", err)
		}

		if len(pending) == 0 {
			break
		}

		for _, p := range pending {
			s.pendingMsgIds = append(s.pendingMsgIds, p.ID)
		}

		// 下一頁從最後一條之後開始
		lastId = "(" + pending[len(pending)-1].ID

		if len(pending) < 100 {
			break
		}
	}

	s.logger.Info("fetched all pending message IDs",
		slog.Int("count", len(s.pendingMsgIds)))
	return nil
}

func (s *GroupConsumer[T]) fetchNextMessage(ctx context.Context) (redis.XMessage, error) {
	if len(s.pendingMsgIds) > 0 {
		// 讀取pending消息
		id := s.pendingMsgIds[0]
		messages, err := s.client.XRangeN(ctx, s.stream, id, id, 1).Result()
		if err != nil {
			return redis.XMessage{}, err
		}
		s.pendingMsgIds = s.pendingMsgIds[1:]
		if len(messages) == 0 {
			// 消息已被修剪，只能確認掉
			s.logger.Warn("pending message no longer exists", slog.String("messageId", id))
			if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
				return redis.XMessage{}, err
			}
			return redis.XMessage{}, redis.Nil
		}
		return messages[0], nil
	}

	// 讀取新消息
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    s.options.blockTimeout,
	}).Result()
	if err != nil {
		return redis.XMessage{}, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return redis.XMessage{}, redis.Nil
	}
	return streams[0].Messages[0], nil
}

// moveToDeadLetter 將無法解析的消息移到 dead-letter stream
func (s *GroupConsumer[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage, cause error) error {
	values := maps.Clone(message.Values)
	if values == nil {
		values = map[string]any{}
	}
	values[fieldError] = cause.Error()

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterStream(s.stream),
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}

	// 確認原消息
	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

// moveToDownStream 處理發送消息到下游channel
func (s *GroupConsumer[T]) moveToDownStream(ctx context.Context, message *Message[T]) error {
	if ctx.Err() != nil {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case s.downStream <- message:
		return nil
	}
}
