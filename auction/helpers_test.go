package auction

import (
	"io"
	"log"
	"time"

	"github.com/google/uuid"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

var (
	testSeller = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bidderA    = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	bidderB    = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	bidderC    = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	testEnd    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func chf(amount int64) Money {
	return Money{Amount: amount, Currency: "CHF"}
}

func chfPtr(amount int64) *Money {
	m := chf(amount)
	return &m
}

// activeLedger 建立起標價1000、增額100的進行中拍賣
func activeLedger() Ledger {
	return Ledger{
		ID:              uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		SellerID:        testSeller,
		Currency:        "CHF",
		StartingPrice:   chf(1000),
		MinBidIncrement: chf(100),
		StartTime:       testEnd.Add(-24 * time.Hour),
		EndTime:         testEnd,
		MaxExtensions:   3,
		ReserveMet:      true,
		State:           StateActive,
	}
}

// apply 將接受的出價套用到快照上，模擬 Coordinator 的寫入
func apply(snap Snapshot, d *Delta) Snapshot {
	bids := make([]Bid, len(snap.Bids))
	copy(bids, snap.Bids)
	for _, u := range d.StatusUpdates {
		for i := range bids {
			if bids[i].ID == u.BidID {
				bids[i].Status = u.Status
			}
		}
	}
	bids = append(bids, d.NewBids...)
	l := snap.Ledger
	current := d.CurrentBid
	l.CurrentBid = &current
	l.BidCount = d.BidCount
	l.UniqueBidderCount = d.UniqueBidderCount
	l.ReserveMet = d.ReserveMet
	return Snapshot{Ledger: l, Bids: bids}
}

func manual(bidder uuid.UUID, amount int64, at time.Time) ProposedBid {
	return ProposedBid{BidderID: bidder, BidderName: bidder.String()[30:], Amount: chf(amount), PlacedAt: at}
}

func auto(bidder uuid.UUID, amount, ceiling int64, at time.Time) ProposedBid {
	p := manual(bidder, amount, at)
	p.IsAutoBid = true
	p.MaxAutoBid = chfPtr(ceiling)
	return p
}
