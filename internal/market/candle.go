package market

// Candle 表示单根 K 线。Key 为该周期的开盘时间（毫秒），同一 (pair, timeframe)
// 内唯一；收到相同 Key 的事件表示未收盘 K 线的更新。
type Candle struct {
	Key   int64   `json:"key"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// OHLC4 返回四价均值，作为该根 K 线的平滑单值。
func (c Candle) OHLC4() float64 {
	return (c.Open + c.High + c.Low + c.Close) / 4
}
