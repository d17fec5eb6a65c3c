package signal

// CrossUp 判断 fast 是否在 lookback 根内自下而上穿越 slow：lookback 步前
// fast 严格低于 slow，当前 fast 严格高于 slow。任一序列不足 lookback 个点
// 时返回 ErrInsufficientHistory（三态语义：无法判断 ≠ 否）。
func CrossUp(fast, slow []float64, lookback int) (bool, error) {
	if lookback < 2 {
		lookback = 2
	}
	if len(fast) < lookback || len(slow) < lookback {
		return false, ErrInsufficientHistory
	}
	fastOld := fast[len(fast)-lookback]
	fastNew := fast[len(fast)-1]
	slowOld := slow[len(slow)-lookback]
	slowNew := slow[len(slow)-1]
	return fastNew > slowNew && fastOld < slowOld, nil
}

// CrossDown 判断 fast 是否在 lookback 根内自上而下穿越 slow。
// 对任意序列恒有 CrossDown(fast, slow, L) == CrossUp(slow, fast, L)。
func CrossDown(fast, slow []float64, lookback int) (bool, error) {
	if lookback < 2 {
		lookback = 2
	}
	if len(fast) < lookback || len(slow) < lookback {
		return false, ErrInsufficientHistory
	}
	fastOld := fast[len(fast)-lookback]
	fastNew := fast[len(fast)-1]
	slowOld := slow[len(slow)-lookback]
	slowNew := slow[len(slow)-1]
	return fastNew < slowNew && fastOld > slowOld, nil
}

// EMACrossUp 是常用组合：基于收盘价计算快慢 EMA 后做上穿检测。
func EMACrossUp(closes []float64, fastPeriod, slowPeriod, lookback int) (bool, error) {
	return CrossUp(EMA(closes, fastPeriod), EMA(closes, slowPeriod), lookback)
}

// EMACrossDown 基于收盘价计算快慢 EMA 后做下穿检测。
func EMACrossDown(closes []float64, fastPeriod, slowPeriod, lookback int) (bool, error) {
	return CrossDown(EMA(closes, fastPeriod), EMA(closes, slowPeriod), lookback)
}
