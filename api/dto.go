package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"auctionhouse/auction"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

type CreateAuctionBody struct {
	ListingID       *uuid.UUID `json:"listingId"`
	Currency        string     `json:"currency" binding:"required,len=3"`
	StartingPrice   int64      `json:"startingPrice" binding:"min=0"`
	ReservePrice    *int64     `json:"reservePrice" binding:"omitempty,min=0"`
	MinBidIncrement int64      `json:"minBidIncrement" binding:"required,gt=0"`
	StartTime       *time.Time `json:"startTime"`
	EndTime         time.Time  `json:"endTime" binding:"required"`
	MaxExtensions   int        `json:"maxExtensions" binding:"min=0"`
}

type PlaceBidBody struct {
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	Currency   string `json:"currency" binding:"required,len=3"`
	IsAutoBid  bool   `json:"isAutoBid"`
	MaxAutoBid *int64 `json:"maxAutoBid" binding:"omitempty,gt=0"`
}

type BidView struct {
	ID         uuid.UUID `json:"id"`
	BidderID   uuid.UUID `json:"bidderId"`
	BidderName string    `json:"bidderName"`
	Amount     MoneyView `json:"amount"`
	IsAutoBid  bool      `json:"isAutoBid"`
	Synthetic  bool      `json:"synthetic"`
	PlacedAt   time.Time `json:"placedAt"`
	Seq        int64     `json:"seq"`
	Status     string    `json:"status"`
}

func toBidViews(bids []auction.Bid) []BidView {
	return lo.Map(bids, func(b auction.Bid, _ int) BidView {
		return BidView{
			ID:         b.ID,
			BidderID:   b.BidderID,
			BidderName: b.BidderName,
			Amount:     toMoneyView(b.Amount),
			IsAutoBid:  b.IsAutoBid,
			Synthetic:  b.Synthetic,
			PlacedAt:   b.PlacedAt,
			Seq:        b.Seq,
			Status:     string(b.Status),
		}
	})
}

// AuctionView 是公開的拍賣資訊，保留價金額與代理出價上限不對外公開
type AuctionView struct {
	ID                uuid.UUID  `json:"id"`
	ListingID         uuid.UUID  `json:"listingId"`
	SellerID          uuid.UUID  `json:"sellerId"`
	State             string     `json:"state"`
	StartingPrice     MoneyView  `json:"startingPrice"`
	MinBidIncrement   MoneyView  `json:"minBidIncrement"`
	CurrentBid        *MoneyView `json:"currentBid,omitempty"`
	NextMinBid        MoneyView  `json:"nextMinBid"`
	HasReserve        bool       `json:"hasReserve"`
	ReserveMet        bool       `json:"reserveMet"`
	BidCount          int        `json:"bidCount"`
	UniqueBidderCount int        `json:"uniqueBidderCount"`
	StartTime         time.Time  `json:"startTime"`
	EndTime           time.Time  `json:"endTime"`
	ExtensionCount    int        `json:"extensionCount"`
	MaxExtensions     int        `json:"maxExtensions"`
	Outcome           string     `json:"outcome,omitempty"`
	WinnerID          *uuid.UUID `json:"winnerId,omitempty"`
	WinningBid        *MoneyView `json:"winningBid,omitempty"`
	Bids              []BidView  `json:"bids"`
}

func toAuctionView(snap auction.Snapshot) AuctionView {
	l := snap.Ledger
	bids := toBidViews(snap.Bids)
	// 新的出價在前
	bids = lo.Reverse(bids)
	return AuctionView{
		ID:                l.ID,
		ListingID:         l.ListingID,
		SellerID:          l.SellerID,
		State:             string(l.State),
		StartingPrice:     toMoneyView(l.StartingPrice),
		MinBidIncrement:   toMoneyView(l.MinBidIncrement),
		CurrentBid:        toMoneyViewPtr(l.CurrentBid),
		NextMinBid:        toMoneyView(l.MinAcceptable()),
		HasReserve:        l.ReservePrice != nil,
		ReserveMet:        l.ReserveMet,
		BidCount:          l.BidCount,
		UniqueBidderCount: l.UniqueBidderCount,
		StartTime:         l.StartTime,
		EndTime:           l.EndTime,
		ExtensionCount:    l.ExtensionCount,
		MaxExtensions:     l.MaxExtensions,
		Outcome:           string(l.Outcome),
		WinnerID:          l.WinnerID,
		WinningBid:        toMoneyViewPtr(l.WinningBid),
		Bids:              bids,
	}
}

type BidResponse struct {
	BidID          uuid.UUID  `json:"bidId"`
	Outbid         bool       `json:"outbid"`
	CurrentBid     MoneyView  `json:"currentBid"`
	NextMinBid     MoneyView  `json:"nextMinBid"`
	BidCount       int        `json:"bidCount"`
	EndTime        time.Time  `json:"endTime"`
	Extended       bool       `json:"extended"`
	ExtensionCount int        `json:"extensionCount"`
	NewEndTime     *time.Time `json:"newEndTime,omitempty"`
}

type RejectionResponse struct {
	Reason        string     `json:"reason"`
	MinAcceptable *MoneyView `json:"minAcceptable,omitempty"`
}

type CreateAuctionResponse struct {
	ID uuid.UUID `json:"id"`
}
