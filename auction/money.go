package auction

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrAmountOverflow   = errors.New("amount overflow")
)

// Money 以最小貨幣單位(例如分)記錄金額，並標記幣別
type Money struct {
	Amount   int64  `json:"amount" msgpack:"amount"`
	Currency string `json:"currency" msgpack:"currency"`
}

// 非兩位小數的幣別
var currencyExponents = map[string]int32{
	"JPY": 0, "KRW": 0, "CLP": 0, "ISK": 0, "VND": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3,
}

// NewMoney 建立金額，幣別統一轉為大寫
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// Exponent 回傳幣別的小數位數，未知幣別預設為2
func Exponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// Add 相加兩個同幣別的金額
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	if (o.Amount > 0 && m.Amount > math.MaxInt64-o.Amount) || (o.Amount < 0 && m.Amount < math.MinInt64-o.Amount) {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, m.Amount, o.Amount)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Cmp 比較兩個同幣別的金額，m < o 回傳-1，相等回傳0，m > o 回傳1
func (m Money) Cmp(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Decimal 將最小單位金額轉換成十進位數值，例如 1100 CHF -> 11.00
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -Exponent(m.Currency))
}

func (m Money) String() string {
	return m.Decimal().StringFixed(Exponent(m.Currency)) + " " + m.Currency
}

func minMoney(a, b Money) Money {
	if a.Amount <= b.Amount {
		return a
	}
	return b
}

func maxMoney(a, b Money) Money {
	if a.Amount >= b.Amount {
		return a
	}
	return b
}
