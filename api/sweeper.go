package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"auctionhouse/auction"
)

// AuctionLifecycle 是 Sweeper 需要的 Coordinator 操作
type AuctionLifecycle interface {
	Activate(ctx context.Context, auctionID uuid.UUID) (bool, error)
	TrySettle(ctx context.Context, auctionID uuid.UUID) (auction.SettleResult, error)
}

// DueLister 列出需要啟動或結標的拍賣
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]auction.DueAuction, error)
}

// Sweeper 定期找出到期的拍賣，草稿到了開始時間就啟動，進行中到了結束時間就結標。
// 多個實例同時執行是安全的，Coordinator 會序列化同一場拍賣且結標是冪等的
type Sweeper struct {
	lister      DueLister
	lifecycle   AuctionLifecycle
	interval    time.Duration
	batchSize   int
	concurrency int
	clock       func() time.Time
	logger      *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

type SweeperOption func(*Sweeper)

// WithSweeperBatchSize 設置每輪最多處理的拍賣數量
func WithSweeperBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		s.batchSize = n
	}
}

// WithSweeperConcurrency 設置每輪同時處理的拍賣數量
func WithSweeperConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		s.concurrency = n
	}
}

// WithSweeperClock 設置時間來源(主要用於測試)
func WithSweeperClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

// WithSweeperLogger 設置日誌記錄器
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func NewSweeper(lister DueLister, lifecycle AuctionLifecycle, interval time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	if lister == nil || lifecycle == nil {
		return nil, errors.New("lister and lifecycle cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	s := &Sweeper{
		lister:      lister,
		lifecycle:   lifecycle,
		interval:    interval,
		batchSize:   100,
		concurrency: 4,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	s.logger = s.logger.With(slog.String("caller", "Sweeper"))
	return s, nil
}

// SweepResult 是一輪掃描的統計
type SweepResult struct {
	Activated int
	Settled   int
	Failed    int
}

// RunOnce 執行一輪掃描，個別拍賣的錯誤只記錄不中斷，只有列出到期拍賣失敗時回傳錯誤
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	due, err := s.lister.ListDue(ctx, s.clock(), s.batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	var activated, settled, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, d := range due {
		g.Go(func() error {
			logger := s.logger.With(slog.String("auctionID", d.ID.String()), slog.String("state", string(d.State)))
			if d.State == auction.StateDraft {
				ok, err := s.lifecycle.Activate(gctx, d.ID)
				if err != nil {
					logger.Error("Fail to activate auction", slog.Any("error", err))
					failed.Add(1)
					return nil
				}
				if ok {
					activated.Add(1)
				}
				return nil
			}
			result, err := s.lifecycle.TrySettle(gctx, d.ID)
			if err != nil {
				logger.Error("Fail to settle auction", slog.Any("error", err))
				failed.Add(1)
				return nil
			}
			if result.Settled {
				settled.Add(1)
				logger.Info("Auction settled", slog.String("outcome", string(result.Outcome)))
			}
			return nil
		})
	}
	_ = g.Wait()
	return SweepResult{
		Activated: int(activated.Load()),
		Settled:   int(settled.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.running = true
	s.logger.Info("Start auction sweeper", slog.Duration("interval", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("Auction sweeper stopped")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := s.RunOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Error("Fail to list due auctions", slog.Any("error", err))
					}
					continue
				}
				if result != (SweepResult{}) {
					s.logger.Debug("Sweep finished",
						slog.Int("activated", result.Activated),
						slog.Int("settled", result.Settled),
						slog.Int("failed", result.Failed))
				}
			}
		}
	}()
}

func (s *Sweeper) Close() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancelFunc()
	s.mu.Unlock()
	s.wg.Wait()
}
