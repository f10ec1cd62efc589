package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionLedger 代表單一拍賣的帳本
// 包含起標價、底價、目前出價、結束時間與延長次數等資訊，Version 用於樂觀鎖
type AuctionLedger struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	ListingID       uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	SellerID        uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	Currency        string    `gorm:"type:varchar(3);not null;<-:create"`
	StartingPrice   int64     `gorm:"not null;<-:create"`
	ReservePrice    *int64    `gorm:"<-:create"`
	MinBidIncrement int64     `gorm:"not null;<-:create"`
	MaxExtensions   int       `gorm:"not null;<-:create"`
	StartTime       time.Time `gorm:"not null;<-:create"`

	CurrentBid        *int64
	BidCount          int       `gorm:"not null"`
	UniqueBidderCount int       `gorm:"not null"`
	EndTime           time.Time `gorm:"not null;index"`
	ExtensionCount    int       `gorm:"not null"`
	ReserveMet        bool      `gorm:"not null"`
	State             string    `gorm:"type:varchar(16);not null;index"`

	WinnerID   *uuid.UUID `gorm:"type:uuid"`
	WinningBid *int64
	Outcome    string `gorm:"type:varchar(32);not null"`

	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`

	// 外鍵關聯
	Bids []Bid `gorm:"foreignKey:AuctionID"`
}
