package auction

import (
	"time"

	"github.com/google/uuid"
)

// Settlement 是結標判斷結果，Settled 為 false 表示帳本不需變更
type Settlement struct {
	Settled       bool
	Outcome       Outcome
	WinnerID      *uuid.UUID
	WinningBid    *Money
	WinningBidID  uuid.UUID
	StatusUpdates []StatusUpdate
}

// TrySettle 在 now 已達結束時間時決定結標結果。
// 已結標或已取消的拍賣一律回傳未變更，所以重複呼叫是安全的。
func TrySettle(snap Snapshot, now time.Time) Settlement {
	l := snap.Ledger
	if !l.State.IsOpen() || now.Before(l.EndTime) {
		return Settlement{}
	}

	s := Settlement{Settled: true}
	winner, hasWinner := settlementWinner(snap)
	switch {
	case l.CurrentBid == nil || !hasWinner:
		s.Outcome = OutcomeNoSale
	case !l.ReserveMet:
		s.Outcome = OutcomeReserveNotMet
	default:
		s.Outcome = OutcomeWon
		s.WinnerID = &winner.BidderID
		s.WinningBid = &winner.Amount
		s.WinningBidID = winner.ID
	}

	for _, b := range snap.Bids {
		switch {
		case s.Outcome == OutcomeWon && b.ID == winner.ID:
			s.StatusUpdates = append(s.StatusUpdates, StatusUpdate{BidID: b.ID, Status: BidStatusWon})
		case isLive(b.Status):
			s.StatusUpdates = append(s.StatusUpdates, StatusUpdate{BidID: b.ID, Status: BidStatusLost})
		}
	}
	return s
}

// settlementWinner 取得領先出價，若沒有標記為 winning 的出價則退回金額最高的有效出價
func settlementWinner(snap Snapshot) (Bid, bool) {
	if b, ok := snap.WinningBid(); ok {
		return b, true
	}
	var (
		best  Bid
		found bool
	)
	for _, b := range snap.Bids {
		if b.Status != BidStatusActive {
			continue
		}
		if !found || b.Amount.Amount > best.Amount.Amount {
			best, found = b, true
		}
	}
	return best, found
}

func isLive(s BidStatus) bool {
	return s == BidStatusActive || s == BidStatusWinning || s == BidStatusOutbid
}
