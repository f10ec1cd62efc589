package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"auctionhouse/auction"
)

type record struct {
	ledger auction.Ledger
	bids   []auction.Bid
}

// Store 是以記憶體實作的 auction.Storage，適合開發模式與測試。
// 讀出與寫入都會複製資料，呼叫端拿到的快照不會被其他寫入影響。
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*record

	// commitHook 在寫入前被呼叫，回傳錯誤時放棄寫入(主要用於測試)
	commitHook func(auction.Commit) error
}

type StoreOption func(*Store)

// WithCommitHook 設置寫入前的攔截函數
func WithCommitHook(fn func(auction.Commit) error) StoreOption {
	return func(s *Store) {
		s.commitHook = fn
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{records: make(map[uuid.UUID]*record)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) LoadLedger(ctx context.Context, auctionID uuid.UUID) (auction.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return auction.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[auctionID]
	if !ok {
		return auction.Snapshot{}, auction.ErrNotFound
	}
	return auction.Snapshot{
		Ledger: copyLedger(r.ledger),
		Bids:   lo.Map(r.bids, func(b auction.Bid, _ int) auction.Bid { return copyBid(b) }),
	}, nil
}

func (s *Store) Commit(ctx context.Context, commit auction.Commit) error {
	const op = "memory.Store.Commit"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[commit.AuctionID]
	if !ok {
		return auction.ErrNotFound
	}
	if r.ledger.Version != commit.ExpectedVersion {
		return fmt.Errorf("%s: expected version %d, got %d: %w", op, commit.ExpectedVersion, r.ledger.Version, auction.ErrConflict)
	}
	if s.commitHook != nil {
		if err := s.commitHook(commit); err != nil {
			return err
		}
	}

	// 先在副本上套用，全部成功才替換
	bids := slices.Clone(r.bids)
	index := make(map[uuid.UUID]int, len(bids))
	for i, b := range bids {
		index[b.ID] = i
	}
	for _, u := range commit.StatusUpdates {
		i, ok := index[u.BidID]
		if !ok {
			return fmt.Errorf("%s: unknown bid %s", op, u.BidID)
		}
		bids[i].Status = u.Status
	}
	for _, b := range commit.NewBids {
		if _, exists := index[b.ID]; exists {
			return fmt.Errorf("%s: duplicated bid %s", op, b.ID)
		}
		bids = append(bids, copyBid(b))
	}

	ledger := copyLedger(commit.Ledger)
	ledger.Version = commit.ExpectedVersion + 1
	r.ledger = ledger
	r.bids = bids
	return nil
}

func (s *Store) CreateLedger(ctx context.Context, ledger auction.Ledger) error {
	const op = "memory.Store.CreateLedger"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[ledger.ID]; exists {
		return fmt.Errorf("%s: ledger %s already exists", op, ledger.ID)
	}
	s.records[ledger.ID] = &record{ledger: copyLedger(ledger)}
	return nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]auction.DueAuction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []auction.DueAuction
	for _, r := range s.records {
		l := r.ledger
		if (l.State == auction.StateDraft && !now.Before(l.StartTime)) || (l.State.IsOpen() && !now.Before(l.EndTime)) {
			due = append(due, auction.DueAuction{ID: l.ID, State: l.State, StartTime: l.StartTime, EndTime: l.EndTime})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func copyLedger(l auction.Ledger) auction.Ledger {
	l.ReservePrice = copyMoney(l.ReservePrice)
	l.CurrentBid = copyMoney(l.CurrentBid)
	l.WinningBid = copyMoney(l.WinningBid)
	if l.WinnerID != nil {
		l.WinnerID = lo.ToPtr(*l.WinnerID)
	}
	return l
}

func copyBid(b auction.Bid) auction.Bid {
	b.MaxAutoBid = copyMoney(b.MaxAutoBid)
	return b
}

func copyMoney(m *auction.Money) *auction.Money {
	if m == nil {
		return nil
	}
	return lo.ToPtr(*m)
}
