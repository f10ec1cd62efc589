package auction

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// State 拍賣狀態
type State string

const (
	StateDraft     State = "draft"
	StateActive    State = "active"
	StateExtended  State = "extended"
	StateEnded     State = "ended"
	StateCancelled State = "cancelled"
)

// IsOpen 表示是否接受出價，extended 在驗證時視同 active
func (s State) IsOpen() bool {
	return s == StateActive || s == StateExtended
}

// IsTerminal 表示拍賣是否已經結束或取消
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateCancelled
}

// Outcome 結標結果，只有在 ended 狀態下才有值
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeWon           Outcome = "won"
	OutcomeReserveNotMet Outcome = "reserve_not_met"
	OutcomeNoSale        Outcome = "no_sale"
)

// Ledger 記錄單一拍賣的設定與累計資料，是拍賣狀態唯一的真實來源
type Ledger struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	SellerID  uuid.UUID
	Currency  string

	StartingPrice   Money
	ReservePrice    *Money
	MinBidIncrement Money
	CurrentBid      *Money

	BidCount          int
	UniqueBidderCount int

	StartTime      time.Time
	EndTime        time.Time
	ExtensionCount int
	MaxExtensions  int

	ReserveMet bool
	State      State

	WinnerID   *uuid.UUID
	WinningBid *Money
	Outcome    Outcome

	// Version 用於樂觀鎖，每次提交成功後遞增
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MinAcceptable 回傳下一口出價的最低金額
func (l Ledger) MinAcceptable() Money {
	if l.CurrentBid == nil {
		return l.StartingPrice
	}
	return l.raise(*l.CurrentBid)
}

// raise 回傳 m 加上一個增額，溢位時停在 int64 上限
func (l Ledger) raise(m Money) Money {
	next, err := m.Add(l.MinBidIncrement)
	if err != nil {
		return Money{Amount: math.MaxInt64, Currency: l.Currency}
	}
	return next
}

// reserveMetFor 計算以 amount 為目前出價時是否達到底價
func (l Ledger) reserveMetFor(amount *Money) bool {
	if l.ReservePrice == nil {
		return true
	}
	if amount == nil {
		return false
	}
	cmp, err := amount.Cmp(*l.ReservePrice)
	return err == nil && cmp >= 0
}

// Validate 檢查帳本不變量，存儲層讀出違反不變量的帳本視為內部錯誤
func (l Ledger) Validate() error {
	const op = "Ledger.Validate"
	sameCurrency := func(name string, m *Money) error {
		if m != nil && m.Currency != l.Currency {
			return fmt.Errorf("[%s] %s currency %s differs from ledger currency %s", op, name, m.Currency, l.Currency)
		}
		return nil
	}
	for _, field := range []struct {
		name  string
		money *Money
	}{
		{"startingPrice", &l.StartingPrice},
		{"reservePrice", l.ReservePrice},
		{"minBidIncrement", &l.MinBidIncrement},
		{"currentBid", l.CurrentBid},
		{"winningBid", l.WinningBid},
	} {
		if err := sameCurrency(field.name, field.money); err != nil {
			return err
		}
	}
	if l.StartingPrice.Amount < 0 {
		return fmt.Errorf("[%s] negative starting price", op)
	}
	if l.MinBidIncrement.Amount <= 0 {
		return fmt.Errorf("[%s] min bid increment must be positive", op)
	}
	if l.CurrentBid != nil && l.CurrentBid.Amount < l.StartingPrice.Amount {
		return fmt.Errorf("[%s] current bid %s below starting price %s", op, l.CurrentBid, l.StartingPrice)
	}
	if l.BidCount < 0 || l.UniqueBidderCount < 0 || l.UniqueBidderCount > l.BidCount {
		return fmt.Errorf("[%s] invalid bid counters, bidCount=%d, uniqueBidderCount=%d", op, l.BidCount, l.UniqueBidderCount)
	}
	if l.ExtensionCount < 0 || l.MaxExtensions < 0 || l.ExtensionCount > l.MaxExtensions {
		return fmt.Errorf("[%s] invalid extension counters, extensionCount=%d, maxExtensions=%d", op, l.ExtensionCount, l.MaxExtensions)
	}
	if l.EndTime.Before(l.StartTime) {
		return fmt.Errorf("[%s] end time before start time", op)
	}
	if l.ReserveMet != l.reserveMetFor(l.CurrentBid) {
		return fmt.Errorf("[%s] reserveMet=%t does not match current bid", op, l.ReserveMet)
	}
	switch l.State {
	case StateDraft, StateActive, StateExtended, StateCancelled:
		if l.WinnerID != nil || l.WinningBid != nil || l.Outcome != OutcomeNone {
			return fmt.Errorf("[%s] settlement fields set in state %s", op, l.State)
		}
	case StateEnded:
		if (l.Outcome == OutcomeWon) != (l.WinnerID != nil && l.WinningBid != nil) {
			return fmt.Errorf("[%s] winner fields inconsistent with outcome %q", op, l.Outcome)
		}
	default:
		return fmt.Errorf("[%s] unknown state %q", op, l.State)
	}
	return nil
}

// Snapshot 是從存儲層讀取的一致性快照，Bids 依 Seq 排序
type Snapshot struct {
	Ledger Ledger
	Bids   []Bid
}

// WinningBid 回傳目前領先的出價
func (s Snapshot) WinningBid() (Bid, bool) {
	for i := len(s.Bids) - 1; i >= 0; i-- {
		if s.Bids[i].Status == BidStatusWinning {
			return s.Bids[i], true
		}
	}
	return Bid{}, false
}

// LastBid 回傳最後一筆出價
func (s Snapshot) LastBid() (Bid, bool) {
	if len(s.Bids) == 0 {
		return Bid{}, false
	}
	return s.Bids[len(s.Bids)-1], true
}

// HasBidFrom 判斷出價者是否已經有出價紀錄
func (s Snapshot) HasBidFrom(bidderID uuid.UUID) bool {
	for _, b := range s.Bids {
		if b.BidderID == bidderID {
			return true
		}
	}
	return false
}

// DueAuction 是需要排程處理的拍賣(待啟動或待結標)
type DueAuction struct {
	ID        uuid.UUID
	State     State
	StartTime time.Time
	EndTime   time.Time
}
