package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"auctionhouse/adapters/memory"
	pgAdapter "auctionhouse/adapters/postgres"
	redisAdapter "auctionhouse/adapters/redis"
	s3Adapter "auctionhouse/adapters/s3"
	"auctionhouse/adapters/sse"
	"auctionhouse/auction"
	"auctionhouse/models"
)

// EventHistory 讀取已寫入資料庫的事件紀錄
type EventHistory interface {
	ListEvents(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.AuctionEvent, error)
}

type Server struct {
	config      ServerConfig
	logger      *slog.Logger
	clock       func() time.Time
	htmlChecker *bluemonday.Policy

	storage     auction.Storage
	history     EventHistory
	recorder    EventRecorder
	archiver    Archiver
	coordinator *auction.Coordinator
	sseManager  *sse.ConnectionManager[EventMessage]

	redisClient redis.UniversalClient
	producer    *redisAdapter.Producer[EventMessage]
	consumer    *redisAdapter.Consumer[EventMessage]
	journal     *Journal
	sweeper     *Sweeper

	// 由 NewServer 自己建立、需要在 Close 時釋放的資源
	closers []func() error

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

type ServerOption func(*Server)

// WithStorage 注入帳本存儲，未注入時依設定連線 postgres
func WithStorage(storage auction.Storage) ServerOption {
	return func(s *Server) {
		s.storage = storage
	}
}

// WithEventStore 注入事件紀錄的寫入與查詢
func WithEventStore(recorder EventRecorder, history EventHistory) ServerOption {
	return func(s *Server) {
		s.recorder = recorder
		s.history = history
	}
}

// WithRedisClient 注入 Redis 客戶端，未注入時依設定建立
func WithRedisClient(client redis.UniversalClient) ServerOption {
	return func(s *Server) {
		s.redisClient = client
	}
}

// WithArchiver 注入結標文件封存，未注入時依 S3 設定建立
func WithArchiver(archiver Archiver) ServerOption {
	return func(s *Server) {
		s.archiver = archiver
	}
}

// WithServerClock 設置時間來源(主要用於測試)
func WithServerClock(clock func() time.Time) ServerOption {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithServerLogger 設置日誌記錄器
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(config ServerConfig, opts ...ServerOption) (*Server, error) {
	const op = "NewServer"
	s := &Server{
		config:      config,
		logger:      slog.Default(),
		clock:       time.Now,
		htmlChecker: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// 子元件各自加上 caller
	baseLogger := s.logger
	s.logger = baseLogger.With(slog.String("caller", "Server"))
	if s.config.HTTP.KeepAliveInterval <= 0 {
		s.config.HTTP.KeepAliveInterval = 30 * time.Second
	}
	if s.config.HTTP.MaxBodyBytes <= 0 {
		s.config.HTTP.MaxBodyBytes = 64 << 10
	}

	fail := func(err error) (*Server, error) {
		s.closeResources()
		return nil, err
	}

	// 未設定資料庫時使用記憶體存儲，只適合單一實例且重啟後資料會消失
	if s.storage == nil && config.DB.Host == "" {
		baseLogger.Warn("No database configured, ledgers are kept in memory")
		s.storage = memory.NewStore()
	}

	// 初始化資料庫連線
	if s.storage == nil {
		db, err := gorm.Open(postgres.Open(config.DB.DSN()), &gorm.Config{
			TranslateError: true,
			NamingStrategy: schema.NamingStrategy{
				TablePrefix: tablePrefix(config.DB.Schema),
			},
		})
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err))
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, sqlDB.Close)
		}
		store, err := pgAdapter.NewStore(db, pgAdapter.WithLogger(baseLogger))
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create store, err=%w", op, err))
		}
		if config.DB.AutoMigrate {
			if err := store.Migrate(context.Background()); err != nil {
				return fail(fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err))
			}
		}
		s.storage = store
		if s.recorder == nil {
			s.recorder = store
			s.history = store
		}
	}

	// 初始化Redis連線
	if s.redisClient == nil && config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		s.redisClient = client
		s.closers = append(s.closers, client.Close)
	}

	// 初始化S3
	if s.archiver == nil && config.S3.Bucket != "" {
		client, err := s3Adapter.NewClient(context.Background(), s3Adapter.ClientConfig{
			Endpoint:        config.S3.Endpoint,
			Region:          config.S3.Region,
			AccessKeyID:     config.S3.AccessKeyID,
			SecretAccessKey: config.S3.SecretAccessKey,
		})
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create S3 client, err=%w", op, err))
		}
		operator, err := s3Adapter.NewS3Operator(client, config.S3.Bucket, config.S3.PublicBaseURL)
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err))
		}
		s.archiver = operator
	}

	// 初始化SSE管理器與事件發布
	s.sseManager = sse.NewConnectionManager[EventMessage](sse.WithManagerLogger(baseLogger))
	publisherOpts := []PublisherOption{WithPublisherClock(s.clock)}
	if s.redisClient != nil {
		producer, err := redisAdapter.NewProducer[EventMessage](
			s.redisClient,
			config.Redis.StreamKeys.Events,
			redisAdapter.WithProducerLogger[EventMessage](baseLogger),
			redisAdapter.WithProducerMaxLen[EventMessage](config.Redis.StreamMaxLen),
			redisAdapter.WithProducerLabelFunc(func(m EventMessage) string { return m.Kind }),
		)
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create producer, err=%w", op, err))
		}
		consumer, err := redisAdapter.NewConsumer[EventMessage](
			s.redisClient,
			config.Redis.StreamKeys.Events,
			redisAdapter.WithConsumerLogger[EventMessage](baseLogger),
		)
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create consumer, err=%w", op, err))
		}
		s.producer = producer
		s.consumer = consumer
		publisherOpts = append(publisherOpts, WithPublisherProducer(producer))
	}
	publisher := NewEventPublisher(s.sseManager, publisherOpts...)

	// 初始化拍賣鎖
	var locker auction.Locker = auction.NewLocalLocker()
	if config.Redis.DistributedLock && s.redisClient != nil {
		redisLocker, err := redisAdapter.NewLocker(
			s.redisClient,
			redisAdapter.WithLockerKeyPrefix(config.Redis.KeyPrefix),
			redisAdapter.WithLockerLogger(baseLogger),
		)
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create distributed locker, err=%w", op, err))
		}
		locker = auction.ChainLocker{locker, redisLocker}
	}

	coordinatorOpts := []auction.CoordinatorOption{
		auction.WithLocker(locker),
		auction.WithPolicy(auction.Policy{
			MaxBid:            config.Auction.MaxBid,
			ExtensionWindow:   config.Auction.ExtensionWindow,
			ExtensionDuration: config.Auction.ExtensionDuration,
		}),
		auction.WithClock(s.clock),
		auction.WithLogger(baseLogger),
	}
	if config.Auction.LockTimeout > 0 {
		coordinatorOpts = append(coordinatorOpts, auction.WithLockTimeout(config.Auction.LockTimeout))
	}
	if config.Auction.CommitRetries > 0 {
		coordinatorOpts = append(coordinatorOpts, auction.WithCommitRetries(config.Auction.CommitRetries))
	}
	coordinator, err := auction.NewCoordinator(s.storage, publisher, coordinatorOpts...)
	if err != nil {
		return fail(fmt.Errorf("[%s] Fail to create coordinator, err=%w", op, err))
	}
	s.coordinator = coordinator

	// 初始化事件紀錄
	if s.redisClient != nil && s.recorder != nil {
		groupConsumer, err := redisAdapter.NewGroupConsumer[EventMessage](
			s.redisClient,
			config.Redis.StreamKeys.Events,
			config.Redis.ConsumerGroup,
			config.ID,
			redisAdapter.WithGroupConsumerLogger[EventMessage](baseLogger),
			// 同一個 group 只有持鎖的實例寫入事件紀錄，歷史順序與 stream 一致
			redisAdapter.WithGroupConsumerStrictOrdering[EventMessage](true),
			redisAdapter.WithGroupConsumerMutex[EventMessage](redisAdapter.NewAutoRenewMutex(
				s.redisClient,
				JournalLockKey(config.Redis),
				redisAdapter.WithAutoRenewMutexSkipLockError(true),
			)),
		)
		if err != nil {
			return fail(fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err))
		}
		journalOpts := []JournalOption{WithJournalClock(s.clock)}
		if s.archiver != nil {
			journalOpts = append(journalOpts, WithJournalArchiver(s.archiver))
		}
		s.journal = NewJournal(groupConsumer, s.recorder, coordinator, journalOpts...)
	}

	// 初始化結標排程
	interval := config.Sweeper.Interval
	if interval <= 0 {
		interval = time.Second
	}
	sweeper, err := NewSweeper(s.storage, coordinator, interval,
		WithSweeperBatchSize(config.Sweeper.BatchSize),
		WithSweeperClock(s.clock),
		WithSweeperLogger(baseLogger))
	if err != nil {
		return fail(fmt.Errorf("[%s] Fail to create sweeper, err=%w", op, err))
	}
	s.sweeper = sweeper

	return s, nil
}

// JournalLockKey 是事件紀錄 consumer group 的鎖
func JournalLockKey(config RedisConfig) string {
	return config.KeyPrefix + "journal:" + config.ConsumerGroup + ":lock"
}

func tablePrefix(name string) string {
	if name == "" {
		return ""
	}
	return name + "."
}

// Coordinator 回傳拍賣協調器
func (s *Server) Coordinator() *auction.Coordinator {
	return s.coordinator
}

// Sweeper 回傳結標排程
func (s *Server) Sweeper() *Sweeper {
	return s.sweeper
}

func (s *Server) Start() error {
	const op = "Server.Start"
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	if s.producer != nil {
		s.producer.Start()
	}
	// 啟動consumer，將串流上的事件轉發給本機的SSE訂閱者
	if s.consumer != nil {
		s.consumer.Start()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			logger := s.logger.With(slog.String("caller", "EventForwarder"))
			defer logger.Info("Event forwarder stopped")
			ch := s.consumer.Subscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					if err := s.sseManager.Publish(msg.AuctionID.String(), msg); err != nil && !errors.Is(err, sse.ErrManagerClosed) {
						logger.Warn("Fail to forward event", slog.String("kind", msg.Kind), slog.Any("error", err))
					}
				}
			}
		}()
	}
	if s.journal != nil {
		if err := s.journal.Start(); err != nil {
			return fmt.Errorf("[%s] Fail to start journal, err=%w", op, err)
		}
	}
	s.sweeper.Start()
	return nil
}

func (s *Server) Close() {
	s.sweeper.Close()
	if s.journal != nil {
		s.journal.Close()
	}
	// 先停止producer，確保緩衝區中的事件送出
	if s.producer != nil {
		s.producer.Close()
	}
	if s.consumer != nil {
		s.consumer.Close()
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.sseManager.Done()
	s.closeResources()
}

func (s *Server) closeResources() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("Fail to close resource", slog.Any("error", err))
		}
	}
	s.closers = nil
}

// Handler 建立 HTTP 路由
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.BodyLimitMiddleware())

	router.GET("/healthz", s.GetHealthz)
	auctions := router.Group("/auctions")
	auctions.GET("/:id", s.GetAuction)
	auctions.GET("/:id/events", s.GetAuctionEvents)
	auctions.GET("/:id/history", s.GetAuctionHistory)

	authorized := auctions.Group("", s.AuthMiddleware())
	authorized.POST("", s.PostAuction)
	authorized.POST("/:id/bids", s.PostAuctionBid)
	authorized.POST("/:id/cancel", s.PostAuctionCancel)
	authorized.POST("/:id/settle", s.PostAuctionSettle)
	return router
}
