package auction

import "errors"

var (
	// ErrNotFound 拍賣不存在
	ErrNotFound = errors.New("auction not found")
	// ErrConflict 存儲層樂觀鎖衝突，讀到的快照已經過期
	ErrConflict = errors.New("ledger version conflict")
	// ErrBusy 取得拍賣鎖逾時或衝突重試耗盡，呼叫端應退避後重試
	ErrBusy = errors.New("auction busy, retry later")
	// ErrForbidden 呼叫者沒有權限執行操作
	ErrForbidden = errors.New("operation not permitted")
	// ErrInvalidArgument 參數不合法
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState 拍賣狀態不允許此操作
	ErrInvalidState = errors.New("invalid auction state")
	// ErrInternal 非預期錯誤，例如存儲層無法連線或帳本不變量被破壞
	ErrInternal = errors.New("internal error")
)

// Reason 是出價被拒絕的原因，屬於預期內的結果而不是錯誤
type Reason string

const (
	ReasonAuctionNotOpen   Reason = "AuctionNotOpen"
	ReasonAuctionClosed    Reason = "AuctionClosed"
	ReasonOwnerCannotBid   Reason = "OwnerCannotBid"
	ReasonCurrencyMismatch Reason = "CurrencyMismatch"
	ReasonBidTooLow        Reason = "BidTooLow"
	ReasonBidTooHigh       Reason = "BidTooHigh"
)

// Rejection 描述被拒絕的出價，只有 BidTooLow 會帶 MinAcceptable
type Rejection struct {
	Reason        Reason
	MinAcceptable *Money
}
