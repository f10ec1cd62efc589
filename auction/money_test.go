package auction

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	t.Run("string uses currency exponent", func(t *testing.T) {
		assert.Equal(t, "11.00 CHF", chf(1100).String())
		assert.Equal(t, "1100 JPY", NewMoney(1100, "jpy").String())
		assert.Equal(t, "1.100 KWD", NewMoney(1100, "KWD").String())
		assert.Equal(t, "0.05 EUR", NewMoney(5, "EUR").String())
	})

	t.Run("decimal", func(t *testing.T) {
		assert.Equal(t, "31", chf(3100).Decimal().String())
		assert.Equal(t, "10.5", chf(1050).Decimal().String())
	})

	t.Run("add and compare", func(t *testing.T) {
		sum, err := chf(1000).Add(chf(100))
		require.NoError(t, err)
		assert.Equal(t, chf(1100), sum)

		cmp, err := chf(1000).Cmp(chf(1100))
		require.NoError(t, err)
		assert.Equal(t, -1, cmp)

		cmp, err = chf(1100).Cmp(chf(1100))
		require.NoError(t, err)
		assert.Equal(t, 0, cmp)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		_, err := chf(1000).Add(NewMoney(100, "EUR"))
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
		_, err = chf(1000).Cmp(NewMoney(100, "EUR"))
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := chf(math.MaxInt64).Add(chf(1))
		assert.ErrorIs(t, err, ErrAmountOverflow)
		_, err = chf(math.MinInt64).Add(chf(-1))
		assert.ErrorIs(t, err, ErrAmountOverflow)
		sum, err := chf(math.MaxInt64 - 1).Add(chf(1))
		require.NoError(t, err)
		assert.Equal(t, chf(math.MaxInt64), sum)
	})

	t.Run("auto-bid ceiling never below amount", func(t *testing.T) {
		b := Bid{Amount: chf(2000), IsAutoBid: true, MaxAutoBid: chfPtr(1500)}
		assert.Equal(t, chf(2000), b.Ceiling())
		b.IsAutoBid = false
		b.MaxAutoBid = chfPtr(9000)
		assert.Equal(t, chf(2000), b.Ceiling())
	})
}
