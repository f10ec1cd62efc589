package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"auctionhouse/auction"
	"auctionhouse/models"
)

// Store 以 gorm 實作 auction.Storage，帳本與出價的寫入在同一個交易內完成，
// 並以 version 欄位做樂觀鎖
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

type StoreOption func(*Store)

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(db *gorm.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("caller", "PostgresStore"))
	return s, nil
}

// Migrate 建立或更新資料表，正式環境應使用 atlas 產生的遷移檔
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.AuctionLedger{}, &models.Bid{}, &models.AuctionEvent{})
}

func (s *Store) LoadLedger(ctx context.Context, auctionID uuid.UUID) (auction.Snapshot, error) {
	const op = "postgres.Store.LoadLedger"
	var row models.AuctionLedger
	result := s.db.WithContext(ctx).
		Preload("Bids", func(db *gorm.DB) *gorm.DB {
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "seq"}})
		}).
		Where("id = ?", auctionID).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return auction.Snapshot{}, auction.ErrNotFound
		}
		return auction.Snapshot{}, fmt.Errorf("[%s] Fail to find ledger, err=%w", op, result.Error)
	}
	return auction.Snapshot{
		Ledger: toLedger(row),
		Bids:   lo.Map(row.Bids, func(b models.Bid, _ int) auction.Bid { return toBid(b) }),
	}, nil
}

func (s *Store) Commit(ctx context.Context, commit auction.Commit) error {
	const op = "postgres.Store.Commit"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l := commit.Ledger
		result := tx.Model(&models.AuctionLedger{}).
			Where("id = ? AND version = ?", commit.AuctionID, commit.ExpectedVersion).
			Updates(map[string]any{
				"current_bid":         amountPtr(l.CurrentBid),
				"bid_count":           l.BidCount,
				"unique_bidder_count": l.UniqueBidderCount,
				"end_time":            l.EndTime,
				"extension_count":     l.ExtensionCount,
				"reserve_met":         l.ReserveMet,
				"state":               string(l.State),
				"winner_id":           l.WinnerID,
				"winning_bid":         amountPtr(l.WinningBid),
				"outcome":             string(l.Outcome),
				"version":             commit.ExpectedVersion + 1,
				"updated_at":          l.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to update ledger, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.AuctionLedger{}).Where("id = ?", commit.AuctionID).Count(&count).Error; err != nil {
				return fmt.Errorf("[%s] Fail to check ledger existence, err=%w", op, err)
			}
			if count == 0 {
				return auction.ErrNotFound
			}
			return fmt.Errorf("[%s] version %d is stale: %w", op, commit.ExpectedVersion, auction.ErrConflict)
		}

		for _, u := range commit.StatusUpdates {
			result := tx.Model(&models.Bid{}).
				Where("id = ? AND auction_id = ?", u.BidID, commit.AuctionID).
				Update("status", string(u.Status))
			if result.Error != nil {
				return fmt.Errorf("[%s] Fail to update bid status, bidID=%s, err=%w", op, u.BidID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("[%s] unknown bid %s", op, u.BidID)
			}
		}

		if len(commit.NewBids) > 0 {
			rows := lo.Map(commit.NewBids, func(b auction.Bid, _ int) models.Bid { return fromBid(b) })
			if err := tx.Create(&rows).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("[%s] duplicated bid sequence: %w", op, auction.ErrConflict)
				}
				return fmt.Errorf("[%s] Fail to insert bids, err=%w", op, err)
			}
		}
		return nil
	})
}

func (s *Store) CreateLedger(ctx context.Context, ledger auction.Ledger) error {
	const op = "postgres.Store.CreateLedger"
	row := fromLedger(ledger)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("[%s] Fail to create ledger, err=%w", op, err)
	}
	s.logger.Debug("Ledger created", slog.String("auctionID", ledger.ID.String()))
	return nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]auction.DueAuction, error) {
	const op = "postgres.Store.ListDue"
	var rows []models.AuctionLedger
	query := s.db.WithContext(ctx).
		Select("id", "state", "start_time", "end_time").
		Where("(state = ? AND start_time <= ?) OR (state IN ? AND end_time <= ?)",
			string(auction.StateDraft), now,
			[]string{string(auction.StateActive), string(auction.StateExtended)}, now).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "end_time"}})
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list due auctions, err=%w", op, err)
	}
	return lo.Map(rows, func(r models.AuctionLedger, _ int) auction.DueAuction {
		return auction.DueAuction{
			ID:        r.ID,
			State:     auction.State(r.State),
			StartTime: r.StartTime.UTC(),
			EndTime:   r.EndTime.UTC(),
		}
	}), nil
}

// RecordEvent 寫入事件紀錄，EventID 已存在時忽略，回傳這次是否真的寫入
func (s *Store) RecordEvent(ctx context.Context, event models.AuctionEvent) (bool, error) {
	const op = "postgres.Store.RecordEvent"
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&event)
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to record event, eventID=%s, err=%w", op, event.EventID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListEvents 依發生順序列出拍賣的事件紀錄
func (s *Store) ListEvents(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.AuctionEvent, error) {
	const op = "postgres.Store.ListEvents"
	var rows []models.AuctionEvent
	query := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list events, err=%w", op, err)
	}
	return rows, nil
}

func toLedger(r models.AuctionLedger) auction.Ledger {
	money := func(amount *int64) *auction.Money {
		if amount == nil {
			return nil
		}
		return &auction.Money{Amount: *amount, Currency: r.Currency}
	}
	return auction.Ledger{
		ID:                r.ID,
		ListingID:         r.ListingID,
		SellerID:          r.SellerID,
		Currency:          r.Currency,
		StartingPrice:     auction.Money{Amount: r.StartingPrice, Currency: r.Currency},
		ReservePrice:      money(r.ReservePrice),
		MinBidIncrement:   auction.Money{Amount: r.MinBidIncrement, Currency: r.Currency},
		CurrentBid:        money(r.CurrentBid),
		BidCount:          r.BidCount,
		UniqueBidderCount: r.UniqueBidderCount,
		StartTime:         r.StartTime.UTC(),
		EndTime:           r.EndTime.UTC(),
		ExtensionCount:    r.ExtensionCount,
		MaxExtensions:     r.MaxExtensions,
		ReserveMet:        r.ReserveMet,
		State:             auction.State(r.State),
		WinnerID:          r.WinnerID,
		WinningBid:        money(r.WinningBid),
		Outcome:           auction.Outcome(r.Outcome),
		Version:           r.Version,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func fromLedger(l auction.Ledger) models.AuctionLedger {
	return models.AuctionLedger{
		ID:                l.ID,
		ListingID:         l.ListingID,
		SellerID:          l.SellerID,
		Currency:          l.Currency,
		StartingPrice:     l.StartingPrice.Amount,
		ReservePrice:      amountPtr(l.ReservePrice),
		MinBidIncrement:   l.MinBidIncrement.Amount,
		MaxExtensions:     l.MaxExtensions,
		StartTime:         l.StartTime,
		CurrentBid:        amountPtr(l.CurrentBid),
		BidCount:          l.BidCount,
		UniqueBidderCount: l.UniqueBidderCount,
		EndTime:           l.EndTime,
		ExtensionCount:    l.ExtensionCount,
		ReserveMet:        l.ReserveMet,
		State:             string(l.State),
		WinnerID:          l.WinnerID,
		WinningBid:        amountPtr(l.WinningBid),
		Outcome:           string(l.Outcome),
		Version:           l.Version,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

func toBid(b models.Bid) auction.Bid {
	var maxAutoBid *auction.Money
	if b.MaxAutoBid != nil {
		maxAutoBid = &auction.Money{Amount: *b.MaxAutoBid, Currency: b.Currency}
	}
	return auction.Bid{
		ID:         b.ID,
		AuctionID:  b.AuctionID,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     auction.Money{Amount: b.Amount, Currency: b.Currency},
		IsAutoBid:  b.IsAutoBid,
		MaxAutoBid: maxAutoBid,
		PlacedAt:   b.PlacedAt.UTC(),
		Seq:        b.Seq,
		Status:     auction.BidStatus(b.Status),
		Synthetic:  b.Synthetic,
	}
}

func fromBid(b auction.Bid) models.Bid {
	return models.Bid{
		ID:         b.ID,
		AuctionID:  b.AuctionID,
		Seq:        b.Seq,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     b.Amount.Amount,
		Currency:   b.Amount.Currency,
		IsAutoBid:  b.IsAutoBid,
		MaxAutoBid: amountPtr(b.MaxAutoBid),
		Synthetic:  b.Synthetic,
		PlacedAt:   b.PlacedAt,
		Status:     string(b.Status),
	}
}

func amountPtr(m *auction.Money) *int64 {
	if m == nil {
		return nil
	}
	return lo.ToPtr(m.Amount)
}
