package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionhouse/auction"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newLedger() auction.Ledger {
	return auction.Ledger{
		ID:              uuid.New(),
		SellerID:        uuid.New(),
		Currency:        "CHF",
		StartingPrice:   auction.NewMoney(1000, "CHF"),
		MinBidIncrement: auction.NewMoney(100, "CHF"),
		StartTime:       t0,
		EndTime:         t0.Add(time.Hour),
		ReserveMet:      true,
		State:           auction.StateActive,
	}
}

func TestStore_CommitAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	l := newLedger()
	require.NoError(t, store.CreateLedger(ctx, l))
	assert.Error(t, store.CreateLedger(ctx, l))

	bid := auction.Bid{ID: uuid.New(), AuctionID: l.ID, BidderID: uuid.New(), Amount: auction.NewMoney(1000, "CHF"), Seq: 1, Status: auction.BidStatusWinning}
	next := l
	next.CurrentBid = &bid.Amount
	next.BidCount = 1
	next.UniqueBidderCount = 1
	require.NoError(t, store.Commit(ctx, auction.Commit{AuctionID: l.ID, Ledger: next, NewBids: []auction.Bid{bid}}))

	snap, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Ledger.Version)
	require.Len(t, snap.Bids, 1)

	// 修改讀出的快照不會影響存儲內容
	snap.Ledger.CurrentBid.Amount = 99
	snap.Bids[0].Status = auction.BidStatusLost
	again, err := store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.Ledger.CurrentBid.Amount)
	assert.Equal(t, auction.BidStatusWinning, again.Bids[0].Status)

	err = store.Commit(ctx, auction.Commit{AuctionID: l.ID, ExpectedVersion: 0, Ledger: next})
	assert.ErrorIs(t, err, auction.ErrConflict)

	err = store.Commit(ctx, auction.Commit{
		AuctionID:       l.ID,
		ExpectedVersion: 1,
		Ledger:          next,
		StatusUpdates:   []auction.StatusUpdate{{BidID: uuid.New(), Status: auction.BidStatusLost}},
	})
	assert.Error(t, err)
	again, err = store.LoadLedger(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Ledger.Version)

	_, err = store.LoadLedger(ctx, uuid.New())
	assert.ErrorIs(t, err, auction.ErrNotFound)
}

func TestStore_CommitHook(t *testing.T) {
	boom := errors.New("boom")
	store := NewStore(WithCommitHook(func(auction.Commit) error { return boom }))
	l := newLedger()
	require.NoError(t, store.CreateLedger(context.Background(), l))
	err := store.Commit(context.Background(), auction.Commit{AuctionID: l.ID, Ledger: l})
	assert.ErrorIs(t, err, boom)
}

func TestStore_ListDue(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	draft := newLedger()
	draft.State = auction.StateDraft
	draft.StartTime = t0.Add(-time.Minute)
	draft.EndTime = t0.Add(time.Hour)

	due := newLedger()
	due.EndTime = t0

	notDue := newLedger()
	notDue.EndTime = t0.Add(time.Minute)

	cancelled := newLedger()
	cancelled.State = auction.StateCancelled
	cancelled.EndTime = t0.Add(-time.Hour)
	cancelled.StartTime = t0.Add(-2 * time.Hour)

	for _, l := range []auction.Ledger{draft, due, notDue, cancelled} {
		require.NoError(t, store.CreateLedger(ctx, l))
	}

	list, err := store.ListDue(ctx, t0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, due.ID, list[0].ID)
	assert.Equal(t, draft.ID, list[1].ID)

	list, err = store.ListDue(ctx, t0, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
