package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind 事件種類
type EventKind string

const (
	KindBidAccepted      EventKind = "bid_accepted"
	KindAuctionExtended  EventKind = "auction_extended"
	KindAuctionEnded     EventKind = "auction_ended"
	KindAuctionActivated EventKind = "auction_activated"
	KindAuctionCancelled EventKind = "auction_cancelled"
)

// Event 是 Coordinator 發出的領域事件，只有本套件內定義的型別可以實作
type Event interface {
	Kind() EventKind
	isEvent()
}

type BidAccepted struct {
	BidID      uuid.UUID
	BidderID   uuid.UUID
	BidderName string
	CurrentBid Money
	NextMinBid Money
	BidCount   int
	PlacedAt   time.Time
}

type AuctionExtended struct {
	NewEndTime     time.Time
	ExtensionCount int
}

type AuctionEnded struct {
	Outcome    Outcome
	WinnerID   *uuid.UUID
	WinningBid *Money
	EndedAt    time.Time
}

type AuctionActivated struct {
	StartTime time.Time
	EndTime   time.Time
}

type AuctionCancelled struct {
	CancelledBy uuid.UUID
	CancelledAt time.Time
}

func (BidAccepted) Kind() EventKind      { return KindBidAccepted }
func (AuctionExtended) Kind() EventKind  { return KindAuctionExtended }
func (AuctionEnded) Kind() EventKind     { return KindAuctionEnded }
func (AuctionActivated) Kind() EventKind { return KindAuctionActivated }
func (AuctionCancelled) Kind() EventKind { return KindAuctionCancelled }

func (BidAccepted) isEvent()      {}
func (AuctionExtended) isEvent()  {}
func (AuctionEnded) isEvent()     {}
func (AuctionActivated) isEvent() {}
func (AuctionCancelled) isEvent() {}

// Publisher 將事件廣播給外部。投遞語意為至少一次，發送失敗不會回滾已提交的出價。
type Publisher interface {
	Publish(ctx context.Context, auctionID uuid.UUID, event Event) error
}

// Storage 是帳本的持久化介面
type Storage interface {
	// LoadLedger 讀取帳本與所有出價，拍賣不存在時回傳 ErrNotFound
	LoadLedger(ctx context.Context, auctionID uuid.UUID) (Snapshot, error)
	// Commit 原子性地寫入帳本、新出價與狀態變更，版本不符時回傳 ErrConflict
	Commit(ctx context.Context, commit Commit) error
	// CreateLedger 建立新的帳本
	CreateLedger(ctx context.Context, ledger Ledger) error
	// ListDue 列出 now 時需要啟動或結標的拍賣
	ListDue(ctx context.Context, now time.Time, limit int) ([]DueAuction, error)
}

// Commit 是一次原子寫入。Ledger 是寫入後的完整帳本，ExpectedVersion 是讀取快照時的版本
type Commit struct {
	AuctionID       uuid.UUID
	ExpectedVersion int64
	Ledger          Ledger
	NewBids         []Bid
	StatusUpdates   []StatusUpdate
}
