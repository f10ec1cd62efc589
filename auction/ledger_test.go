package auction

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Ledger)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Ledger) {}},
		{
			name:    "currency mismatch",
			mutate:  func(l *Ledger) { l.CurrentBid = &Money{Amount: 1000, Currency: "EUR"}; l.BidCount = 1 },
			wantErr: true,
		},
		{
			name:    "current bid below starting price",
			mutate:  func(l *Ledger) { l.CurrentBid = chfPtr(900); l.BidCount = 1 },
			wantErr: true,
		},
		{
			name:    "unique bidders greater than bids",
			mutate:  func(l *Ledger) { l.UniqueBidderCount = 2; l.BidCount = 1 },
			wantErr: true,
		},
		{
			name:    "extension count over budget",
			mutate:  func(l *Ledger) { l.ExtensionCount = 4 },
			wantErr: true,
		},
		{
			name:    "reserve flag out of sync",
			mutate:  func(l *Ledger) { l.ReservePrice = chfPtr(5000) },
			wantErr: true,
		},
		{
			name:    "zero increment",
			mutate:  func(l *Ledger) { l.MinBidIncrement = chf(0) },
			wantErr: true,
		},
		{
			name: "winner set before end",
			mutate: func(l *Ledger) {
				id := uuid.New()
				l.WinnerID = &id
			},
			wantErr: true,
		},
		{
			name: "ended with winner",
			mutate: func(l *Ledger) {
				l.State = StateEnded
				l.Outcome = OutcomeWon
				l.CurrentBid = chfPtr(1200)
				l.BidCount = 1
				l.UniqueBidderCount = 1
				l.WinnerID = &bidderA
				l.WinningBid = chfPtr(1200)
			},
		},
		{
			name: "won outcome without winner",
			mutate: func(l *Ledger) {
				l.State = StateEnded
				l.Outcome = OutcomeWon
			},
			wantErr: true,
		},
		{
			name:    "end before start",
			mutate:  func(l *Ledger) { l.EndTime = l.StartTime.Add(-time.Second) },
			wantErr: true,
		},
		{
			name:    "unknown state",
			mutate:  func(l *Ledger) { l.State = "paused" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := activeLedger()
			tt.mutate(&l)
			err := l.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLedger_MinAcceptable(t *testing.T) {
	l := activeLedger()
	assert.Equal(t, chf(1000), l.MinAcceptable())
	l.CurrentBid = chfPtr(1000)
	assert.Equal(t, chf(1100), l.MinAcceptable())
}

// 多個欄位幣別錯誤時，固定回報第一個欄位
func TestLedger_ValidateCurrencyOrder(t *testing.T) {
	for range 20 {
		l := activeLedger()
		l.ReservePrice = &Money{Amount: 1000, Currency: "EUR"}
		l.MinBidIncrement = Money{Amount: 100, Currency: "USD"}
		err := l.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reservePrice currency EUR")
	}
}

func TestLedger_MinAcceptableCapsAtLimit(t *testing.T) {
	l := activeLedger()
	l.CurrentBid = chfPtr(math.MaxInt64 - 10)
	assert.Equal(t, chf(math.MaxInt64), l.MinAcceptable())
}
