package auction

import "time"

// Extension 是防狙擊延長的判斷結果
type Extension struct {
	Extend         bool
	NewEndTime     time.Time
	ExtensionCount int
}

// EvaluateExtension 判斷出價是否落在結標前的延長窗口內。
// 新的結束時間是 placedAt + ExtensionDuration 而不是原結束時間加上延長，
// 避免連續的尾盤出價讓結束時間無限漂移。延長次數用完後即使持續尾盤出價也不再延長。
func EvaluateExtension(l Ledger, placedAt time.Time, p Policy) Extension {
	noExtension := Extension{ExtensionCount: l.ExtensionCount}
	if p.ExtensionWindow <= 0 || p.ExtensionDuration <= 0 {
		return noExtension
	}
	if l.ExtensionCount >= l.MaxExtensions {
		return noExtension
	}
	if !placedAt.Before(l.EndTime) || placedAt.Before(l.EndTime.Add(-p.ExtensionWindow)) {
		return noExtension
	}
	newEnd := placedAt.Add(p.ExtensionDuration)
	// 延長時間短於窗口時可能反而提早結標，這種情況不延長
	if !newEnd.After(l.EndTime) {
		return noExtension
	}
	return Extension{
		Extend:         true,
		NewEndTime:     newEnd,
		ExtensionCount: l.ExtensionCount + 1,
	}
}
