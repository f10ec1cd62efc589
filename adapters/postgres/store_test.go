package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"auctionhouse/auction"
	"auctionhouse/models"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// newTestStore 使用 sqlite 記憶體資料庫，每個測試一個獨立的資料庫
func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newLedger() auction.Ledger {
	reserve := auction.NewMoney(1500, "CHF")
	return auction.Ledger{
		ID:              uuid.New(),
		ListingID:       uuid.New(),
		SellerID:        uuid.New(),
		Currency:        "CHF",
		StartingPrice:   auction.NewMoney(1000, "CHF"),
		ReservePrice:    &reserve,
		MinBidIncrement: auction.NewMoney(100, "CHF"),
		StartTime:       t0,
		EndTime:         t0.Add(time.Hour),
		MaxExtensions:   3,
		State:           auction.StateActive,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
}

func newBid(l auction.Ledger, seq int64, amount int64) auction.Bid {
	return auction.Bid{
		ID:         uuid.New(),
		AuctionID:  l.ID,
		BidderID:   uuid.New(),
		BidderName: "bidder",
		Amount:     auction.NewMoney(amount, l.Currency),
		PlacedAt:   t0.Add(time.Duration(seq) * time.Second),
		Seq:        seq,
		Status:     auction.BidStatusWinning,
	}
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestStore_CreateAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := newLedger()
	require.NoError(t, store.CreateLedger(ctx, l))

	snap, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Equal(t, l.ID, snap.Ledger.ID)
	assert.Equal(t, l.SellerID, snap.Ledger.SellerID)
	assert.Equal(t, l.StartingPrice, snap.Ledger.StartingPrice)
	assert.Equal(t, l.ReservePrice, snap.Ledger.ReservePrice)
	assert.Nil(t, snap.Ledger.CurrentBid)
	assert.True(t, l.EndTime.Equal(snap.Ledger.EndTime))
	assert.Equal(t, auction.StateActive, snap.Ledger.State)
	assert.Equal(t, int64(0), snap.Ledger.Version)

	_, err = store.LoadLedger(ctx, uuid.New())
	assert.ErrorIs(t, err, auction.ErrNotFound)
}

func TestStore_Commit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := newLedger()
	require.NoError(t, store.CreateLedger(ctx, l))

	first := newBid(l, 1, 1000)
	next := l
	next.CurrentBid = &first.Amount
	next.BidCount = 1
	next.UniqueBidderCount = 1
	next.Version = 1
	require.NoError(t, store.Commit(ctx, auction.Commit{
		AuctionID:       l.ID,
		ExpectedVersion: 0,
		Ledger:          next,
		NewBids:         []auction.Bid{first},
	}))

	second := newBid(l, 2, 1600)
	next.CurrentBid = &second.Amount
	next.BidCount = 2
	next.UniqueBidderCount = 2
	next.ReserveMet = true
	next.EndTime = l.EndTime.Add(5 * time.Minute)
	next.ExtensionCount = 1
	next.State = auction.StateExtended
	next.Version = 2
	require.NoError(t, store.Commit(ctx, auction.Commit{
		AuctionID:       l.ID,
		ExpectedVersion: 1,
		Ledger:          next,
		NewBids:         []auction.Bid{second},
		StatusUpdates:   []auction.StatusUpdate{{BidID: first.ID, Status: auction.BidStatusOutbid}},
	}))

	snap, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Ledger.Version)
	assert.Equal(t, int64(1600), snap.Ledger.CurrentBid.Amount)
	assert.True(t, snap.Ledger.ReserveMet)
	assert.Equal(t, auction.StateExtended, snap.Ledger.State)
	assert.Equal(t, 1, snap.Ledger.ExtensionCount)
	assert.True(t, next.EndTime.Equal(snap.Ledger.EndTime))
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, first.ID, snap.Bids[0].ID)
	assert.Equal(t, auction.BidStatusOutbid, snap.Bids[0].Status)
	assert.Equal(t, auction.BidStatusWinning, snap.Bids[1].Status)
	assert.NoError(t, snap.Ledger.Validate())
}

func TestStore_Commit_StaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := newLedger()
	require.NoError(t, store.CreateLedger(ctx, l))

	bid := newBid(l, 1, 1000)
	next := l
	next.CurrentBid = &bid.Amount
	next.BidCount = 1
	next.UniqueBidderCount = 1
	require.NoError(t, store.Commit(ctx, auction.Commit{AuctionID: l.ID, ExpectedVersion: 0, Ledger: next, NewBids: []auction.Bid{bid}}))

	// 以舊版本寫入必須失敗且不留下任何出價
	stale := newBid(l, 2, 1100)
	err := store.Commit(ctx, auction.Commit{AuctionID: l.ID, ExpectedVersion: 0, Ledger: next, NewBids: []auction.Bid{stale}})
	assert.ErrorIs(t, err, auction.ErrConflict)

	snap, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 1)

	err = store.Commit(ctx, auction.Commit{AuctionID: uuid.New(), ExpectedVersion: 0, Ledger: next})
	assert.ErrorIs(t, err, auction.ErrNotFound)
}

func TestStore_Commit_RollsBackOnUnknownBid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := newLedger()
	require.NoError(t, store.CreateLedger(ctx, l))

	next := l
	next.State = auction.StateCancelled
	err := store.Commit(ctx, auction.Commit{
		AuctionID:       l.ID,
		ExpectedVersion: 0,
		Ledger:          next,
		StatusUpdates:   []auction.StatusUpdate{{BidID: uuid.New(), Status: auction.BidStatusLost}},
	})
	assert.Error(t, err)

	snap, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StateActive, snap.Ledger.State)
	assert.Equal(t, int64(0), snap.Ledger.Version)
}

func TestStore_ListDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	draftDue := newLedger()
	draftDue.State = auction.StateDraft
	draftDue.StartTime = t0.Add(-time.Minute)
	draftDue.EndTime = t0.Add(3 * time.Hour)

	draftLater := newLedger()
	draftLater.State = auction.StateDraft
	draftLater.StartTime = t0.Add(time.Hour)
	draftLater.EndTime = t0.Add(2 * time.Hour)

	activeDue := newLedger()
	activeDue.EndTime = t0.Add(-time.Second)
	activeDue.StartTime = t0.Add(-time.Hour)

	extendedDue := newLedger()
	extendedDue.State = auction.StateExtended
	extendedDue.ExtensionCount = 1
	extendedDue.EndTime = t0
	extendedDue.StartTime = t0.Add(-time.Hour)

	activeLater := newLedger()

	ended := newLedger()
	ended.State = auction.StateEnded
	ended.Outcome = auction.OutcomeNoSale
	ended.EndTime = t0.Add(-time.Hour)
	ended.StartTime = t0.Add(-2 * time.Hour)

	for _, l := range []auction.Ledger{draftDue, draftLater, activeDue, extendedDue, activeLater, ended} {
		require.NoError(t, store.CreateLedger(ctx, l))
	}

	due, err := store.ListDue(ctx, t0, 10)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []uuid.UUID{activeDue.ID, extendedDue.ID, draftDue.ID}, ids)

	due, err = store.ListDue(ctx, t0, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestStore_RecordEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	auctionID := uuid.New()

	first := models.AuctionEvent{EventID: uuid.New(), AuctionID: auctionID, Kind: "bid_accepted", Payload: []byte(`{}`), OccurredAt: t0}
	second := models.AuctionEvent{EventID: uuid.New(), AuctionID: auctionID, Kind: "auction_ended", Payload: []byte(`{}`), OccurredAt: t0.Add(time.Hour)}

	inserted, err := store.RecordEvent(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	// 重複投遞只會寫入一次
	inserted, err = store.RecordEvent(ctx, first)
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = store.RecordEvent(ctx, second)
	require.NoError(t, err)
	assert.True(t, inserted)

	events, err := store.ListEvents(ctx, auctionID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.EventID, events[0].EventID)
	assert.Equal(t, "auction_ended", events[1].Kind)

	events, err = store.ListEvents(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// Coordinator 搭配 gorm 存儲的完整流程
func TestStore_WithCoordinator(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := t0
	c, err := auction.NewCoordinator(store, nopPublisher{}, auction.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	seller := uuid.New()
	l, err := c.CreateAuction(ctx, auction.CreateAuctionRequest{
		SellerID:        seller,
		Currency:        "CHF",
		StartingPrice:   1000,
		MinBidIncrement: 100,
		StartTime:       t0,
		EndTime:         t0.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = c.Activate(ctx, l.ID)
	require.NoError(t, err)

	bidder := uuid.New()
	res, err := c.PlaceBid(ctx, l.ID, auction.PlaceBidRequest{BidderID: bidder, Amount: auction.NewMoney(1200, "CHF")})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	now = t0.Add(time.Hour)
	settle, err := c.TrySettle(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, settle.Settled)
	assert.Equal(t, auction.OutcomeWon, settle.Outcome)
	assert.Equal(t, bidder, *settle.WinnerID)

	snap, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StateEnded, snap.Ledger.State)
	assert.Equal(t, auction.BidStatusWon, snap.Bids[0].Status)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, uuid.UUID, auction.Event) error { return nil }
