package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "auctionhouse/auction"

type coordinatorOptions struct {
	locker        Locker
	policy        Policy
	lockTimeout   time.Duration
	commitRetries int
	clock         func() time.Time
	logger        *slog.Logger
	tracer        trace.Tracer
}

type CoordinatorOption func(*coordinatorOptions)

// WithLocker 設置拍賣鎖，預設為 LocalLocker
func WithLocker(locker Locker) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.locker = locker
	}
}

// WithPolicy 設置出價與延長規則
func WithPolicy(policy Policy) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.policy = policy
	}
}

// WithLockTimeout 設置等待拍賣鎖的最長時間，逾時回傳 ErrBusy
func WithLockTimeout(d time.Duration) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.lockTimeout = d
	}
}

// WithCommitRetries 設置樂觀鎖衝突時的重試次數
func WithCommitRetries(n int) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.commitRetries = n
	}
}

// WithClock 設置時間來源(主要用於測試)
func WithClock(clock func() time.Time) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.clock = clock
	}
}

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.logger = logger
	}
}

// WithTracer 設置 OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.tracer = tracer
	}
}

// Coordinator 是唯一可以修改帳本的元件。
// 同一個拍賣的出價、啟動、取消與結標會被序列化，不同拍賣之間互不阻塞。
type Coordinator struct {
	store     Storage
	publisher Publisher
	logger    *slog.Logger
	options   coordinatorOptions
}

func NewCoordinator(store Storage, publisher Publisher, opts ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("storage cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}

	// 默認選項
	options := coordinatorOptions{
		policy:        DefaultPolicy(),
		lockTimeout:   2 * time.Second,
		commitRetries: 3,
		clock:         time.Now,
		logger:        slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	if options.locker == nil {
		options.locker = NewLocalLocker()
	}
	if options.tracer == nil {
		options.tracer = otel.Tracer(tracerName)
	}
	if options.lockTimeout <= 0 {
		return nil, errors.New("lock timeout must be positive")
	}
	if options.commitRetries < 0 {
		return nil, errors.New("commit retries cannot be negative")
	}

	return &Coordinator{
		store:     store,
		publisher: publisher,
		logger:    options.logger.With(slog.String("caller", "Coordinator")),
		options:   options,
	}, nil
}

// PlaceBidRequest 是呼叫端送入的出價
type PlaceBidRequest struct {
	BidderID   uuid.UUID
	BidderName string
	Amount     Money
	IsAutoBid  bool
	MaxAutoBid *Money
}

// BidResult 是出價結果，Accepted 為 false 時 Rejection 有值
type BidResult struct {
	Accepted  bool
	Rejection *Rejection

	BidID          uuid.UUID
	Outbid         bool
	CurrentBid     Money
	NextMinBid     Money
	BidCount       int
	EndTime        time.Time
	NewEndTime     *time.Time
	ExtensionCount int
}

// SettleResult 是結標結果，Settled 只有在這次呼叫完成結標時為 true
type SettleResult struct {
	Settled    bool
	State      State
	Outcome    Outcome
	WinnerID   *uuid.UUID
	WinningBid *Money
}

// CreateAuctionRequest 用於將刊登物件發布為拍賣草稿
type CreateAuctionRequest struct {
	ListingID       uuid.UUID
	SellerID        uuid.UUID
	Currency        string
	StartingPrice   int64
	ReservePrice    *int64
	MinBidIncrement int64
	StartTime       time.Time
	EndTime         time.Time
	MaxExtensions   int
}

// CancelRequest 由賣家或營運人員取消拍賣
type CancelRequest struct {
	ActorID  uuid.UUID
	Operator bool
}

// plan 是一次臨界區內決定好的寫入與事件，commit 為 nil 表示不需寫入
type plan struct {
	commit *Commit
	events []Event
}

// PlaceBid 處理一筆出價。驗證拒絕不是錯誤，會放在 BidResult.Rejection 中回傳；
// error 只會是 ErrNotFound、ErrBusy、ctx 錯誤或 ErrInternal。
func (c *Coordinator) PlaceBid(ctx context.Context, auctionID uuid.UUID, req PlaceBidRequest) (BidResult, error) {
	const op = "Coordinator.PlaceBid"
	ctx, span := c.options.tracer.Start(ctx, "auction.PlaceBid", trace.WithAttributes(
		attribute.String("auction.id", auctionID.String()),
		attribute.String("bidder.id", req.BidderID.String()),
		attribute.Int64("bid.amount", req.Amount.Amount),
	))
	defer span.End()

	var result BidResult
	err := c.execute(ctx, op, auctionID, func(snap Snapshot, now time.Time) (plan, error) {
		placedAt := now
		if last, ok := snap.LastBid(); ok && !placedAt.After(last.PlacedAt) {
			placedAt = last.PlacedAt.Add(time.Microsecond)
		}
		decision := Validate(snap, ProposedBid{
			BidderID:   req.BidderID,
			BidderName: req.BidderName,
			Amount:     req.Amount,
			IsAutoBid:  req.IsAutoBid,
			MaxAutoBid: req.MaxAutoBid,
			PlacedAt:   placedAt,
		}, c.options.policy)
		if !decision.Accepted() {
			result = BidResult{Accepted: false, Rejection: decision.Rejection}
			return plan{}, nil
		}

		delta := decision.Delta
		ext := EvaluateExtension(snap.Ledger, placedAt, c.options.policy)

		next := snap.Ledger
		next.CurrentBid = &delta.CurrentBid
		next.BidCount = delta.BidCount
		next.UniqueBidderCount = delta.UniqueBidderCount
		next.ReserveMet = delta.ReserveMet
		if ext.Extend {
			next.EndTime = ext.NewEndTime
			next.ExtensionCount = ext.ExtensionCount
			next.State = StateExtended
		}
		next.Version = snap.Ledger.Version + 1
		next.UpdatedAt = now

		winning := delta.Winning()
		result = BidResult{
			Accepted:       true,
			BidID:          delta.ChallengerBidID,
			Outbid:         delta.ChallengerOutbid,
			CurrentBid:     delta.CurrentBid,
			NextMinBid:     delta.NextMinBid,
			BidCount:       delta.BidCount,
			EndTime:        next.EndTime,
			ExtensionCount: next.ExtensionCount,
		}
		events := []Event{BidAccepted{
			BidID:      winning.ID,
			BidderID:   winning.BidderID,
			BidderName: winning.BidderName,
			CurrentBid: delta.CurrentBid,
			NextMinBid: delta.NextMinBid,
			BidCount:   delta.BidCount,
			PlacedAt:   placedAt,
		}}
		if ext.Extend {
			result.NewEndTime = &ext.NewEndTime
			events = append(events, AuctionExtended{NewEndTime: ext.NewEndTime, ExtensionCount: ext.ExtensionCount})
		}
		return plan{
			commit: &Commit{
				AuctionID:       auctionID,
				ExpectedVersion: snap.Ledger.Version,
				Ledger:          next,
				NewBids:         delta.NewBids,
				StatusUpdates:   delta.StatusUpdates,
			},
			events: events,
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return BidResult{}, err
	}
	span.SetAttributes(attribute.Bool("bid.accepted", result.Accepted))
	if result.Rejection != nil {
		span.SetAttributes(attribute.String("bid.rejection", string(result.Rejection.Reason)))
	}
	return result, nil
}

// TrySettle 在結束時間已過時結標，重複呼叫只會在第一次回傳 Settled，之後回傳相同的結果
func (c *Coordinator) TrySettle(ctx context.Context, auctionID uuid.UUID) (SettleResult, error) {
	const op = "Coordinator.TrySettle"
	ctx, span := c.options.tracer.Start(ctx, "auction.TrySettle", trace.WithAttributes(
		attribute.String("auction.id", auctionID.String()),
	))
	defer span.End()

	var result SettleResult
	err := c.execute(ctx, op, auctionID, func(snap Snapshot, now time.Time) (plan, error) {
		settlement := TrySettle(snap, now)
		if !settlement.Settled {
			l := snap.Ledger
			result = SettleResult{State: l.State, Outcome: l.Outcome, WinnerID: l.WinnerID, WinningBid: l.WinningBid}
			return plan{}, nil
		}
		next := snap.Ledger
		next.State = StateEnded
		next.Outcome = settlement.Outcome
		next.WinnerID = settlement.WinnerID
		next.WinningBid = settlement.WinningBid
		next.Version = snap.Ledger.Version + 1
		next.UpdatedAt = now

		result = SettleResult{
			Settled:    true,
			State:      StateEnded,
			Outcome:    settlement.Outcome,
			WinnerID:   settlement.WinnerID,
			WinningBid: settlement.WinningBid,
		}
		return plan{
			commit: &Commit{
				AuctionID:       auctionID,
				ExpectedVersion: snap.Ledger.Version,
				Ledger:          next,
				StatusUpdates:   settlement.StatusUpdates,
			},
			events: []Event{AuctionEnded{
				Outcome:    settlement.Outcome,
				WinnerID:   settlement.WinnerID,
				WinningBid: settlement.WinningBid,
				EndedAt:    now,
			}},
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SettleResult{}, err
	}
	span.SetAttributes(attribute.Bool("auction.settled", result.Settled), attribute.String("auction.outcome", string(result.Outcome)))
	return result, nil
}

// Activate 在開始時間到達後將草稿轉為進行中，回傳這次呼叫是否完成啟動
func (c *Coordinator) Activate(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	const op = "Coordinator.Activate"
	var activated bool
	err := c.execute(ctx, op, auctionID, func(snap Snapshot, now time.Time) (plan, error) {
		l := snap.Ledger
		if l.State != StateDraft || now.Before(l.StartTime) {
			return plan{}, nil
		}
		next := l
		next.State = StateActive
		next.Version = l.Version + 1
		next.UpdatedAt = now
		activated = true
		return plan{
			commit: &Commit{AuctionID: auctionID, ExpectedVersion: l.Version, Ledger: next},
			events: []Event{AuctionActivated{StartTime: l.StartTime, EndTime: l.EndTime}},
		}, nil
	})
	if err != nil {
		return false, err
	}
	return activated, nil
}

// Cancel 取消尚未結束的拍賣，所有仍有效的出價改為 lost
func (c *Coordinator) Cancel(ctx context.Context, auctionID uuid.UUID, req CancelRequest) error {
	const op = "Coordinator.Cancel"
	return c.execute(ctx, op, auctionID, func(snap Snapshot, now time.Time) (plan, error) {
		l := snap.Ledger
		if !req.Operator && req.ActorID != l.SellerID {
			return plan{}, fmt.Errorf("[%s] only the seller can cancel, actor=%s: %w", op, req.ActorID, ErrForbidden)
		}
		if l.State.IsTerminal() {
			return plan{}, fmt.Errorf("[%s] auction already %s: %w", op, l.State, ErrInvalidState)
		}
		next := l
		next.State = StateCancelled
		next.Version = l.Version + 1
		next.UpdatedAt = now
		var updates []StatusUpdate
		for _, b := range snap.Bids {
			if isLive(b.Status) {
				updates = append(updates, StatusUpdate{BidID: b.ID, Status: BidStatusLost})
			}
		}
		return plan{
			commit: &Commit{AuctionID: auctionID, ExpectedVersion: l.Version, Ledger: next, StatusUpdates: updates},
			events: []Event{AuctionCancelled{CancelledBy: req.ActorID, CancelledAt: now}},
		}, nil
	})
}

// CreateAuction 以草稿狀態建立新的帳本
func (c *Coordinator) CreateAuction(ctx context.Context, req CreateAuctionRequest) (Ledger, error) {
	const op = "Coordinator.CreateAuction"
	now := c.now()
	switch {
	case req.SellerID == uuid.Nil:
		return Ledger{}, fmt.Errorf("[%s] seller is required: %w", op, ErrInvalidArgument)
	case len(req.Currency) != 3:
		return Ledger{}, fmt.Errorf("[%s] invalid currency %q: %w", op, req.Currency, ErrInvalidArgument)
	case req.StartingPrice < 0:
		return Ledger{}, fmt.Errorf("[%s] starting price cannot be negative: %w", op, ErrInvalidArgument)
	case req.MinBidIncrement <= 0:
		return Ledger{}, fmt.Errorf("[%s] min bid increment must be positive: %w", op, ErrInvalidArgument)
	case req.ReservePrice != nil && *req.ReservePrice < 0:
		return Ledger{}, fmt.Errorf("[%s] reserve price cannot be negative: %w", op, ErrInvalidArgument)
	case req.MaxExtensions < 0:
		return Ledger{}, fmt.Errorf("[%s] max extensions cannot be negative: %w", op, ErrInvalidArgument)
	case !req.EndTime.After(req.StartTime) || !req.EndTime.After(now):
		return Ledger{}, fmt.Errorf("[%s] invalid auction time: %w", op, ErrInvalidArgument)
	}

	currency := NewMoney(0, req.Currency).Currency
	id, err := uuid.NewV7()
	if err != nil {
		return Ledger{}, fmt.Errorf("[%s] Fail to generate auction id, err=%w", op, err)
	}
	listingID := req.ListingID
	if listingID == uuid.Nil {
		listingID = id
	}
	l := Ledger{
		ID:              id,
		ListingID:       listingID,
		SellerID:        req.SellerID,
		Currency:        currency,
		StartingPrice:   Money{Amount: req.StartingPrice, Currency: currency},
		MinBidIncrement: Money{Amount: req.MinBidIncrement, Currency: currency},
		StartTime:       req.StartTime.UTC().Truncate(time.Microsecond),
		EndTime:         req.EndTime.UTC().Truncate(time.Microsecond),
		MaxExtensions:   req.MaxExtensions,
		State:           StateDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ReservePrice != nil {
		l.ReservePrice = &Money{Amount: *req.ReservePrice, Currency: currency}
	}
	l.ReserveMet = l.reserveMetFor(nil)
	if err := c.store.CreateLedger(ctx, l); err != nil {
		return Ledger{}, fmt.Errorf("[%s] Fail to create ledger: %w: %w", op, ErrInternal, err)
	}
	c.logger.Info("Auction created", slog.String("auctionID", l.ID.String()), slog.String("sellerID", l.SellerID.String()))
	return l, nil
}

// Snapshot 讀取目前的帳本與出價，不取得拍賣鎖
func (c *Coordinator) Snapshot(ctx context.Context, auctionID uuid.UUID) (Snapshot, error) {
	return c.load(ctx, "Coordinator.Snapshot", auctionID)
}

// execute 取得拍賣鎖後執行 decide，遇到樂觀鎖衝突時重新讀取快照並重試，
// 寫入成功後依序發布事件。一旦進入臨界區就不再受呼叫端取消影響，避免只套用一半。
func (c *Coordinator) execute(ctx context.Context, op string, auctionID uuid.UUID, decide func(Snapshot, time.Time) (plan, error)) error {
	logger := c.logger.With(slog.String("op", op), slog.String("auctionID", auctionID.String()))

	lockCtx, cancel := context.WithTimeout(ctx, c.options.lockTimeout)
	defer cancel()
	unlock, err := c.options.locker.Lock(lockCtx, auctionID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Warn("Lock wait timed out")
			return fmt.Errorf("[%s] lock wait exceeded %s: %w", op, c.options.lockTimeout, ErrBusy)
		}
		return fmt.Errorf("[%s] Fail to acquire auction lock: %w: %w", op, ErrInternal, err)
	}
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		snap, err := c.load(ctx, op, auctionID)
		if err != nil {
			return err
		}
		p, err := decide(snap, c.now())
		if err != nil {
			return err
		}
		if p.commit == nil {
			return nil
		}
		if err := p.commit.Ledger.Validate(); err != nil {
			return fmt.Errorf("[%s] refusing to commit invalid ledger: %w: %w", op, ErrInternal, err)
		}
		err = c.store.Commit(ctx, *p.commit)
		if errors.Is(err, ErrConflict) {
			if attempt >= c.options.commitRetries {
				logger.Warn("Commit conflict retries exhausted", slog.Int("attempts", attempt+1))
				return fmt.Errorf("[%s] commit conflict after %d attempts: %w", op, attempt+1, ErrBusy)
			}
			logger.Debug("Commit conflict, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return fmt.Errorf("[%s] Fail to commit ledger: %w: %w", op, ErrInternal, err)
		}
		c.publish(ctx, logger, auctionID, p.events)
		return nil
	}
}

func (c *Coordinator) publish(ctx context.Context, logger *slog.Logger, auctionID uuid.UUID, events []Event) {
	for _, event := range events {
		if err := c.publisher.Publish(ctx, auctionID, event); err != nil {
			logger.Warn("Fail to publish event", slog.String("kind", string(event.Kind())), slog.Any("error", err))
		}
	}
}

func (c *Coordinator) load(ctx context.Context, op string, auctionID uuid.UUID) (Snapshot, error) {
	snap, err := c.store.LoadLedger(ctx, auctionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, fmt.Errorf("[%s] auction %s: %w", op, auctionID, ErrNotFound)
		}
		return Snapshot{}, fmt.Errorf("[%s] Fail to load ledger: %w: %w", op, ErrInternal, err)
	}
	if err := snap.Ledger.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("[%s] corrupted ledger: %w: %w", op, ErrInternal, err)
	}
	return snap, nil
}

// now 截斷到微秒，讓時間經過資料庫往返後仍然相等
func (c *Coordinator) now() time.Time {
	return c.options.clock().UTC().Truncate(time.Microsecond)
}
