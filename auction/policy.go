package auction

import "time"

// DefaultMaxBid 未設定上限時套用的單筆出價上限(最小貨幣單位)
const DefaultMaxBid int64 = 100_000_000_000

// Policy 是出價驗證與防狙擊延長的全域設定
type Policy struct {
	// MaxBid 單筆出價(含代理出價上限)的金額上限，以最小貨幣單位計，<= 0 時使用 DefaultMaxBid
	MaxBid int64
	// ExtensionWindow 結標前多久內的出價會觸發延長，<= 0 表示停用
	ExtensionWindow time.Duration
	// ExtensionDuration 延長後的結束時間為出價時間加上此值
	ExtensionDuration time.Duration
}

// DefaultPolicy 結標前5分鐘內出價延長5分鐘
func DefaultPolicy() Policy {
	return Policy{
		MaxBid:            DefaultMaxBid,
		ExtensionWindow:   5 * time.Minute,
		ExtensionDuration: 5 * time.Minute,
	}
}

func (p Policy) maxBid() int64 {
	if p.MaxBid <= 0 {
		return DefaultMaxBid
	}
	return p.MaxBid
}
