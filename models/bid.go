package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid 代表拍賣的出價紀錄
// 除了狀態以外建立後不可修改，同一拍賣內以 Seq 排序
type Bid struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	AuctionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bids_auction_seq,priority:1;<-:create"`
	Seq        int64     `gorm:"not null;uniqueIndex:idx_bids_auction_seq,priority:2;<-:create"`
	BidderID   uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	BidderName string    `gorm:"type:varchar(255);not null;<-:create"`
	Amount     int64     `gorm:"not null;<-:create"`
	Currency   string    `gorm:"type:varchar(3);not null;<-:create"`
	IsAutoBid  bool      `gorm:"not null;<-:create"`
	MaxAutoBid *int64    `gorm:"<-:create"`
	Synthetic  bool      `gorm:"not null;<-:create"`
	PlacedAt   time.Time `gorm:"not null;<-:create"`
	Status     string    `gorm:"type:varchar(16);not null;index"`
}
