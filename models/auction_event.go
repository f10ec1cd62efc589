package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionEvent 是從事件串流寫回資料庫的拍賣事件紀錄，EventID 保證重複投遞時只寫入一次
type AuctionEvent struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;<-:create"`
	AuctionID  uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	Kind       string    `gorm:"type:varchar(32);not null;<-:create"`
	Payload    []byte    `gorm:"not null;<-:create"`
	OccurredAt time.Time `gorm:"not null;<-:create"`
	CreatedAt  time.Time
}
