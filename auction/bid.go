package auction

import (
	"time"

	"github.com/google/uuid"
)

// BidStatus 出價狀態
type BidStatus string

const (
	BidStatusActive    BidStatus = "active"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusWinning   BidStatus = "winning"
	BidStatusWon       BidStatus = "won"
	BidStatusLost      BidStatus = "lost"
	BidStatusRetracted BidStatus = "retracted"
)

// Bid 是已接受的出價紀錄，建立後除了 Status 以外不會再變動
type Bid struct {
	ID         uuid.UUID
	AuctionID  uuid.UUID
	BidderID   uuid.UUID
	BidderName string
	Amount     Money
	IsAutoBid  bool
	MaxAutoBid *Money
	PlacedAt   time.Time
	Seq        int64
	Status     BidStatus
	// Synthetic 表示這是代理出價自動產生的追價
	Synthetic bool
}

// Ceiling 回傳出價者願意出到的最高金額
func (b Bid) Ceiling() Money {
	if b.IsAutoBid && b.MaxAutoBid != nil {
		return maxMoney(b.Amount, *b.MaxAutoBid)
	}
	return b.Amount
}

// StatusUpdate 描述一筆既有出價的狀態變更
type StatusUpdate struct {
	BidID  uuid.UUID
	Status BidStatus
}

// ProposedBid 是尚未驗證的出價，PlacedAt 由 Coordinator 在臨界區內指定
type ProposedBid struct {
	BidderID   uuid.UUID
	BidderName string
	Amount     Money
	IsAutoBid  bool
	MaxAutoBid *Money
	PlacedAt   time.Time
}

func (p ProposedBid) ceiling() Money {
	if p.IsAutoBid && p.MaxAutoBid != nil {
		return maxMoney(p.Amount, *p.MaxAutoBid)
	}
	return p.Amount
}
