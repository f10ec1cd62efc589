package auction

import (
	"github.com/google/uuid"
)

// newBidID 產生出價ID，uuid v7 依時間排序，失敗時退回 v4
var newBidID = func() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Delta 是一次被接受的出價對帳本造成的變更
type Delta struct {
	// NewBids 依 Seq 排序，最後一筆是領先出價
	NewBids       []Bid
	StatusUpdates []StatusUpdate

	CurrentBid        Money
	NextMinBid        Money
	BidCount          int
	UniqueBidderCount int
	ReserveMet        bool

	// ChallengerBidID 是這次提交的出價紀錄
	ChallengerBidID uuid.UUID
	// ChallengerOutbid 表示提交的出價被代理出價立即超越
	ChallengerOutbid bool
}

// Winning 回傳變更後的領先出價
func (d Delta) Winning() Bid {
	return d.NewBids[len(d.NewBids)-1]
}

// Decision 是驗證結果，Rejection 與 Delta 只會有一個有值
type Decision struct {
	Rejection *Rejection
	Delta     *Delta
}

func (d Decision) Accepted() bool {
	return d.Delta != nil
}

func reject(reason Reason) Decision {
	return Decision{Rejection: &Rejection{Reason: reason}}
}

// Validate 判斷出價是否被接受並計算帳本變更，不會修改傳入的快照。
// 代理出價的追價會在同一次呼叫中決定，每次提交只會得到一個最終的目前出價。
func Validate(snap Snapshot, bid ProposedBid, policy Policy) Decision {
	l := snap.Ledger
	if !l.State.IsOpen() {
		return reject(ReasonAuctionNotOpen)
	}
	if !bid.PlacedAt.Before(l.EndTime) {
		return reject(ReasonAuctionClosed)
	}
	if bid.BidderID == l.SellerID {
		return reject(ReasonOwnerCannotBid)
	}
	if bid.Amount.Currency != l.Currency || (bid.MaxAutoBid != nil && bid.MaxAutoBid.Currency != l.Currency) {
		return reject(ReasonCurrencyMismatch)
	}
	minAcceptable := l.MinAcceptable()
	if cmp, err := bid.Amount.Cmp(minAcceptable); err != nil || cmp < 0 {
		return Decision{Rejection: &Rejection{Reason: ReasonBidTooLow, MinAcceptable: &minAcceptable}}
	}
	ceiling := bid.ceiling()
	if ceiling.Amount > policy.maxBid() {
		return reject(ReasonBidTooHigh)
	}
	// 下一口最低出價必須能表示
	if _, err := ceiling.Add(l.MinBidIncrement); err != nil {
		return reject(ReasonBidTooHigh)
	}
	return Decision{Delta: resolve(snap, bid, minAcceptable)}
}

// resolve 處理代理出價階梯:
//   - 領先者是其他人的代理出價且上限 >= minAcceptable 時，先讓代理出價追價
//   - 代理上限 >= 挑戰者上限，挑戰者以上限入帳後立即被超越，代理以 min(代理上限, 挑戰者上限+增額) 領先
//   - 代理上限 < 挑戰者上限，代理出價耗盡，挑戰者領先
func resolve(snap Snapshot, bid ProposedBid, minAcceptable Money) *Delta {
	l := snap.Ledger

	var seq int64 = 1
	if last, ok := snap.LastBid(); ok {
		seq = last.Seq + 1
	}

	challenger := Bid{
		ID:         newBidID(),
		AuctionID:  l.ID,
		BidderID:   bid.BidderID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount,
		IsAutoBid:  bid.IsAutoBid,
		MaxAutoBid: bid.MaxAutoBid,
		PlacedAt:   bid.PlacedAt,
		Seq:        seq,
		Status:     BidStatusWinning,
	}
	challengerCeiling := bid.ceiling()

	delta := &Delta{ChallengerBidID: challenger.ID}
	leader, hasLeader := snap.WinningBid()
	if hasLeader {
		delta.StatusUpdates = append(delta.StatusUpdates, StatusUpdate{BidID: leader.ID, Status: BidStatusOutbid})
	}

	proxyDefends := hasLeader &&
		leader.BidderID != bid.BidderID &&
		leader.IsAutoBid &&
		leader.Ceiling().Amount >= minAcceptable.Amount

	switch {
	case proxyDefends && leader.Ceiling().Amount >= challengerCeiling.Amount:
		leaderCeiling := leader.Ceiling()
		challenger.Amount = challengerCeiling
		challenger.Status = BidStatusOutbid
		counter := Bid{
			ID:         newBidID(),
			AuctionID:  l.ID,
			BidderID:   leader.BidderID,
			BidderName: leader.BidderName,
			Amount:     minMoney(leaderCeiling, l.raise(challengerCeiling)),
			IsAutoBid:  true,
			MaxAutoBid: &leaderCeiling,
			PlacedAt:   bid.PlacedAt,
			Seq:        seq + 1,
			Status:     BidStatusWinning,
			Synthetic:  true,
		}
		delta.NewBids = []Bid{challenger, counter}
		delta.ChallengerOutbid = true
	case proxyDefends:
		if bid.IsAutoBid {
			raised := minMoney(challengerCeiling, l.raise(leader.Ceiling()))
			challenger.Amount = maxMoney(bid.Amount, raised)
		}
		delta.NewBids = []Bid{challenger}
	default:
		delta.NewBids = []Bid{challenger}
	}

	current := delta.Winning().Amount
	delta.CurrentBid = current
	delta.NextMinBid = l.raise(current)
	delta.BidCount = l.BidCount + len(delta.NewBids)
	delta.UniqueBidderCount = l.UniqueBidderCount
	if !snap.HasBidFrom(bid.BidderID) {
		delta.UniqueBidderCount++
	}
	delta.ReserveMet = l.reserveMetFor(&current)
	return delta
}
