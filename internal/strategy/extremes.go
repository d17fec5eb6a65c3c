package strategy

import "github.com/wafaaboulwafa/bybit-trader/internal/market"

// lowestLow 返回最近 count 根 K 线的最低价。
func lowestLow(candles []market.Candle, count int) float64 {
	if count > len(candles) {
		count = len(candles)
	}
	low := 0.0
	for _, c := range candles[len(candles)-count:] {
		if low == 0 || c.Low < low {
			low = c.Low
		}
	}
	return low
}

// highestHigh 返回最近 count 根 K 线的最高价。
func highestHigh(candles []market.Candle, count int) float64 {
	if count > len(candles) {
		count = len(candles)
	}
	high := 0.0
	for _, c := range candles[len(candles)-count:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}
